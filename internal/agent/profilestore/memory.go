package profilestore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vanivoice/vani/internal/agent"
)

// Memory is an in-memory [Store] for tests and database-less deployments.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]agent.Profile
	now      func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[string]agent.Profile),
		now:      time.Now,
	}
}

// Create inserts a new profile.
func (m *Memory) Create(_ context.Context, p *agent.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; ok {
		return fmt.Errorf("profilestore: profile with id %q already exists", p.ID)
	}
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	m.profiles[p.ID] = *p
	return nil
}

// Get retrieves a profile by ID, returning (nil, nil) when absent.
func (m *Memory) Get(_ context.Context, id string) (*agent.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Update replaces an existing profile.
func (m *Memory) Update(_ context.Context, p *agent.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.profiles[p.ID]
	if !ok {
		return fmt.Errorf("profilestore: profile with id %q not found", p.ID)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = m.now()
	m.profiles[p.ID] = *p
	return nil
}

// Delete removes a profile by ID.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.profiles, id)
	return nil
}

// List returns all profiles ordered by name.
func (m *Memory) List(_ context.Context) ([]agent.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]agent.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Upsert creates or replaces a profile.
func (m *Memory) Upsert(_ context.Context, p *agent.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.profiles[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = m.now()
	}
	p.UpdatedAt = m.now()
	m.profiles[p.ID] = *p
	return nil
}
