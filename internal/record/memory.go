package record

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-memory [Store] used for tests and as the fallback backend
// when the database is unreachable.
type Memory struct {
	mu      sync.RWMutex
	records map[string]SessionRecord
}

// Compile-time interface check.
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]SessionRecord)}
}

// Save inserts or replaces a record keyed by its ID.
func (s *Memory) Save(ctx context.Context, rec *SessionRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = *rec
	return nil
}

// Get retrieves a record by ID, returning (nil, nil) when absent.
func (s *Memory) Get(ctx context.Context, id string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// List returns records newest first, optionally filtered by agent.
func (s *Memory) List(ctx context.Context, agentID string, limit int) ([]SessionRecord, error) {
	s.mu.RLock()
	records := make([]SessionRecord, 0, len(s.records))
	for _, rec := range s.records {
		if agentID != "" && rec.AgentID != agentID {
			continue
		}
		records = append(records, rec)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Delete removes a record by ID. Deleting a missing record is not an error.
func (s *Memory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}
