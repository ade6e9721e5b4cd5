package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/healthsphere/healthsphere/internal/conversation"
)

// InMemoryStore is a simple in-process session store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]SessionRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]SessionRecord)}
}

func (s *InMemoryStore) CreateSession(_ context.Context, record SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.SessionID]; exists {
		return fmt.Errorf("session %s already exists", record.SessionID)
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	s.records[record.SessionID] = cloneRecord(record)
	return nil
}

func (s *InMemoryStore) GetSession(_ context.Context, sessionID string) (SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[sessionID]
	if !ok {
		return SessionRecord{}, ErrNotFound
	}
	return cloneRecord(record), nil
}

func (s *InMemoryStore) ListSessions(_ context.Context, createdBy string, limit int) ([]SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionRecord, 0, len(s.records))
	for _, record := range s.records {
		if createdBy != "" && record.CreatedBy != createdBy {
			continue
		}
		out = append(out, cloneRecord(record))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) SaveConversation(_ context.Context, sessionID string, turns []conversation.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[sessionID]
	if !ok {
		return ErrNotFound
	}
	record.Conversation = append([]conversation.Turn(nil), turns...)
	record.UpdatedAt = time.Now().UTC()
	s.records[sessionID] = record
	return nil
}

func (s *InMemoryStore) SaveReport(_ context.Context, sessionID, report string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[sessionID]
	if !ok {
		return ErrNotFound
	}
	record.Report = report
	record.UpdatedAt = time.Now().UTC()
	s.records[sessionID] = record
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func cloneRecord(record SessionRecord) SessionRecord {
	out := record
	out.Conversation = append([]conversation.Turn(nil), record.Conversation...)
	return out
}
