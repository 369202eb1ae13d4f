package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// StoredFile describes a file held by the provider's file storage.
type StoredFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
}

// UploadFile pushes raw document bytes to the Gemini Files API and returns
// the opaque reference used by GenerateWithFile. The provider owns the
// artifact lifecycle after upload; this client never deletes it.
func (c *GeminiClient) UploadFile(ctx context.Context, displayName string, r io.Reader, size int64, mimeType string) (StoredFile, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	url := fmt.Sprintf("%s/files?key=%s", c.uploadBaseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, r)
	if err != nil {
		return StoredFile{}, err
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("X-Goog-Upload-Protocol", "raw")
	if size > 0 {
		req.ContentLength = size
		req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(size, 10))
	}
	if name := strings.TrimSpace(displayName); name != "" {
		req.Header.Set("X-Goog-Upload-File-Name", name)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StoredFile{}, fmt.Errorf("gemini upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return StoredFile{}, &APIError{
			Provider:   "gemini",
			StatusCode: resp.StatusCode,
			Message:    errResp.Error.Message,
		}
	}

	var out struct {
		File StoredFile `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return StoredFile{}, fmt.Errorf("gemini upload decode: %w", err)
	}
	if out.File.URI == "" {
		return StoredFile{}, fmt.Errorf("gemini upload response missing file uri")
	}
	if out.File.MIMEType == "" {
		out.File.MIMEType = mimeType
	}
	return out.File, nil
}
