package app

import "errors"

var (
	// ErrQuotaExhausted indicates the email has used all free credits.
	ErrQuotaExhausted      = errors.New("free question limit reached")
	ErrEmptyQuestion       = errors.New("question required")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrEmptyUpload         = errors.New("uploaded file is empty")
)
