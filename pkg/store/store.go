package store

import "github.com/st243452-ship-it/smart-analyst-saas/pkg/domain"

// Store defines persistence for per-email usage records. Implementations
// must create records lazily: an email never seen before reads as zero
// credits with an empty history, and RecordAnswer creates the record on
// first use.
type Store interface {
	// Load returns the whole usage map. A missing backing store yields an
	// empty map, never an error.
	Load() (map[string]domain.UserRecord, error)

	// Save overwrites the whole usage map.
	Save(records map[string]domain.UserRecord) error

	// RecordAnswer appends one QAEntry to the email's history and increments
	// creditsUsed by exactly one.
	RecordAnswer(email, documentName, question, answer string) error

	// GetStats returns credits used and history for the email. Unknown
	// emails report zero usage.
	GetStats(email string) (int, []domain.QAEntry, error)
}

// TimestampFormat is the human-readable entry timestamp used in history.
const TimestampFormat = "2006-01-02 15:04"
