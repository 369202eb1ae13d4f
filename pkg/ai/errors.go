package ai

import (
	"errors"
	"fmt"
	"strings"
)

// APIError is a provider error carrying the HTTP status of the failed call.
// The answer engine branches on StatusCode instead of scraping error text.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s api error (status %d)", e.Provider, e.StatusCode)
}

// IsRateLimited reports whether err represents a provider rate-limit
// rejection. Errors wrapped by transports that lose the typed APIError are
// still recognized by the "429" marker in their text.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return strings.Contains(err.Error(), "429")
}
