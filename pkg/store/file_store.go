package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/st243452-ship-it/smart-analyst-saas/pkg/domain"
)

// FileStore keeps the usage map in a single flat JSON file, keyed by email.
// Every mutation is a whole-file read-modify-write; the write goes through a
// temp file and rename so readers never observe a partial file. Access from
// other processes is not coordinated.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore validates the path and creates its parent directory.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("usage store path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create usage store dir: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the usage map. A missing file means an empty store; a malformed
// file is logged and also treated as empty rather than refusing to start.
func (s *FileStore) Load() (map[string]domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileStore) loadLocked() (map[string]domain.UserRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]domain.UserRecord{}, nil
		}
		return nil, fmt.Errorf("read usage store: %w", err)
	}
	records := map[string]domain.UserRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Warn("usage store file is malformed, starting empty", "path", s.path, "err", err)
		return map[string]domain.UserRecord{}, nil
	}
	return records, nil
}

// Save overwrites the backing file with the full usage map.
func (s *FileStore) Save(records map[string]domain.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(records)
}

func (s *FileStore) saveLocked(records map[string]domain.UserRecord) error {
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("encode usage store: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".usage-*.json")
	if err != nil {
		return fmt.Errorf("create temp usage store: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write usage store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close usage store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace usage store: %w", err)
	}
	return nil
}

// RecordAnswer upserts the email's record, appends one history entry and
// increments creditsUsed by exactly one.
func (s *FileStore) RecordAnswer(email, documentName, question, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		return err
	}
	record := records[email]
	record.History = append(record.History, domain.QAEntry{
		Time:     time.Now().Format(TimestampFormat),
		Doc:      documentName,
		Question: question,
		Answer:   answer,
	})
	record.CreditsUsed++
	records[email] = record
	return s.saveLocked(records)
}

// GetStats returns (0, nil) for emails that have never asked a question.
func (s *FileStore) GetStats(email string) (int, []domain.QAEntry, error) {
	records, err := s.Load()
	if err != nil {
		return 0, nil, err
	}
	record, ok := records[email]
	if !ok {
		return 0, nil, nil
	}
	return record.CreditsUsed, record.History, nil
}
