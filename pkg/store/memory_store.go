package store

import (
	"sync"
	"time"

	"github.com/st243452-ship-it/smart-analyst-saas/pkg/domain"
)

// MemoryStore keeps usage records in-process, for tests and local dev.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.UserRecord
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.UserRecord)}
}

// Load returns a copy of the usage map.
func (m *MemoryStore) Load() (map[string]domain.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]domain.UserRecord, len(m.records))
	for email, record := range m.records {
		copied := record
		copied.History = append([]domain.QAEntry(nil), record.History...)
		out[email] = copied
	}
	return out, nil
}

// Save replaces the usage map.
func (m *MemoryStore) Save(records map[string]domain.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]domain.UserRecord, len(records))
	for email, record := range records {
		copied := record
		copied.History = append([]domain.QAEntry(nil), record.History...)
		m.records[email] = copied
	}
	return nil
}

// RecordAnswer appends one entry and bumps the credit counter.
func (m *MemoryStore) RecordAnswer(email, documentName, question, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record := m.records[email]
	record.History = append(record.History, domain.QAEntry{
		Time:     time.Now().Format(TimestampFormat),
		Doc:      documentName,
		Question: question,
		Answer:   answer,
	})
	record.CreditsUsed++
	m.records[email] = record
	return nil
}

// GetStats reports zero usage for unknown emails.
func (m *MemoryStore) GetStats(email string) (int, []domain.QAEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[email]
	if !ok {
		return 0, nil, nil
	}
	return record.CreditsUsed, append([]domain.QAEntry(nil), record.History...), nil
}
