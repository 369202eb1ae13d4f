package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Spool keeps uploaded documents on local disk until the ingest worker has
// consumed them. Each document gets its own directory keyed by ID.
type Spool struct {
	basePath string
}

// NewSpool creates the base directory if missing.
func NewSpool(basePath string) (*Spool, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("spool base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spool{basePath: basePath}, nil
}

// Save writes an upload under its document directory and returns the path.
func (s *Spool) Save(documentID, filename string, r io.Reader) (string, error) {
	targetDir := filepath.Join(s.basePath, documentID)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}
	target := filepath.Join(targetDir, safeFilename(filename))

	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return target, nil
}

// Path returns where an upload for the document would live.
func (s *Spool) Path(documentID, filename string) string {
	return filepath.Join(s.basePath, documentID, safeFilename(filename))
}

// Open reads a spooled document back.
func (s *Spool) Open(path string) (*os.File, error) {
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, filepath.Clean(s.basePath)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("path escapes spool: %s", path)
	}
	f, err := os.Open(clean)
	if err != nil {
		return nil, fmt.Errorf("open spooled file: %w", err)
	}
	return f, nil
}

// Delete removes all spooled files for a document.
func (s *Spool) Delete(documentID string) error {
	targetDir := filepath.Join(s.basePath, documentID)
	if _, err := os.Stat(targetDir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(targetDir)
}

func safeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	name = strings.TrimSpace(name)
	if name == "" {
		return "document"
	}
	return name
}
