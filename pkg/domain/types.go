package domain

import "time"

type DocumentStatus string

const (
	StatusQueued     DocumentStatus = "queued"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type IngestMode string

const (
	IngestText   IngestMode = "text"
	IngestVision IngestMode = "vision"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// QAEntry is one persisted question/answer exchange. Field names follow the
// on-disk history format and must not change.
type QAEntry struct {
	Time     string `json:"time"`
	Doc      string `json:"doc"`
	Question string `json:"q"`
	Answer   string `json:"a"`
}

// UserRecord is the persisted per-email usage record.
type UserRecord struct {
	History     []QAEntry `json:"history"`
	CreditsUsed int       `json:"credits_used"`
}

// ChatMessage is one transient transcript entry. It lives only for the
// duration of a session and is never persisted.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DocumentHandle is what the answer engine consumes: either extracted plain
// text or an opaque provider file reference from a vision upload.
type DocumentHandle struct {
	Text     string `json:"text,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

// IsVision reports whether the handle references a provider-side upload.
func (h DocumentHandle) IsVision() bool {
	return h.FileURI != ""
}

// Empty reports whether the handle carries no usable content.
func (h DocumentHandle) Empty() bool {
	return h.Text == "" && h.FileURI == ""
}

// Document is the session's currently uploaded document.
type Document struct {
	ID               string         `json:"id"`
	OriginalFilename string         `json:"originalFilename"`
	Mode             IngestMode     `json:"mode"`
	Status           DocumentStatus `json:"status"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
	SizeBytes        int64          `json:"sizeBytes"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Stats is the usage summary shown on the dashboard sidebar.
type Stats struct {
	Email       string    `json:"email"`
	CreditsUsed int       `json:"creditsUsed"`
	FreeLimit   int       `json:"freeLimit"`
	Remaining   int       `json:"remaining"`
	History     []QAEntry `json:"history"`
}
