package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vanivoice/vani/pkg/provider/analysis"
	"github.com/vanivoice/vani/pkg/provider/live"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	live     map[string]func(LiveConfig) (live.Provider, error)
	analysis map[string]func(AnalysisConfig) (analysis.Analyzer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live:     make(map[string]func(LiveConfig) (live.Provider, error)),
		analysis: make(map[string]func(AnalysisConfig) (analysis.Analyzer, error)),
	}
}

// RegisterLive registers a live speech provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLive(name string, factory func(LiveConfig) (live.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// RegisterAnalysis registers an analysis backend factory under name.
func (r *Registry) RegisterAnalysis(name string, factory func(AnalysisConfig) (analysis.Analyzer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analysis[name] = factory
}

// CreateLive instantiates a live provider using the factory registered under
// cfg.Provider. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateLive(cfg LiveConfig) (live.Provider, error) {
	r.mu.RLock()
	factory, ok := r.live[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateAnalysis instantiates an analysis backend using the factory registered
// under cfg.Provider.
func (r *Registry) CreateAnalysis(cfg AnalysisConfig) (analysis.Analyzer, error) {
	r.mu.RLock()
	factory, ok := r.analysis[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: analysis/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}
