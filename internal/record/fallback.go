package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrAllBackendsFailed is returned when every configured backend either
// failed or had its breaker open.
var ErrAllBackendsFailed = errors.New("record: all backends failed")

// errBreakerOpen marks a backend skipped without being called because its
// breaker tripped.
var errBreakerOpen = errors.New("record: breaker open")

// breaker is a three-state circuit breaker guarding one storage backend.
// After maxFailures consecutive failures it rejects calls for cooldown,
// then lets a single probe through to decide whether to close again.
type breaker struct {
	maxFailures int
	cooldown    time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

func newBreaker(maxFailures int, cooldown time.Duration) *breaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &breaker{maxFailures: maxFailures, cooldown: cooldown}
}

// allow reports whether a call may proceed. In the open state it admits one
// probe per cooldown window.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.maxFailures {
		return true
	}
	if b.probing || time.Since(b.openedAt) < b.cooldown {
		return false
	}
	b.probing = true
	return true
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.openedAt = time.Now()
	}
}

func (b *breaker) open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.maxFailures && time.Since(b.openedAt) < b.cooldown
}

// fallbackBackend pairs a named store with its breaker.
type fallbackBackend struct {
	name    string
	store   Store
	breaker *breaker
}

// Fallback is a [Store] that tries its backends in order, skipping ones whose
// breaker is open. The first backend is the primary; later entries absorb
// writes and reads while the primary is unreachable.
type Fallback struct {
	log      *slog.Logger
	backends []fallbackBackend
}

// Compile-time interface check.
var _ Store = (*Fallback)(nil)

// FallbackOption customises a [Fallback].
type FallbackOption func(*Fallback)

// WithFallbackLogger sets the logger. Defaults to slog.Default().
func WithFallbackLogger(log *slog.Logger) FallbackOption {
	return func(f *Fallback) { f.log = log }
}

// NewFallback creates a [Fallback] over the primary store.
func NewFallback(name string, primary Store, opts ...FallbackOption) *Fallback {
	f := &Fallback{
		log: slog.Default(),
		backends: []fallbackBackend{
			{name: name, store: primary, breaker: newBreaker(3, 30*time.Second)},
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AddFallback appends a lower-priority backend.
func (f *Fallback) AddFallback(name string, store Store) *Fallback {
	f.backends = append(f.backends, fallbackBackend{
		name: name, store: store, breaker: newBreaker(3, 30*time.Second),
	})
	return f
}

// execute runs fn against each backend in priority order until one succeeds.
func (f *Fallback) execute(op string, fn func(Store) error) error {
	errs := make([]error, 0, len(f.backends))
	for i, be := range f.backends {
		if !be.breaker.allow() {
			errs = append(errs, fmt.Errorf("%s: %w", be.name, errBreakerOpen))
			continue
		}
		err := fn(be.store)
		be.breaker.record(err)
		if err == nil {
			if i > 0 {
				f.log.Warn("record store fell back",
					"op", op,
					"backend", be.name)
			}
			return nil
		}
		f.log.Warn("record store backend failed",
			"op", op,
			"backend", be.name,
			"error", err)
		errs = append(errs, fmt.Errorf("%s: %w", be.name, err))
	}
	return errors.Join(append([]error{ErrAllBackendsFailed}, errs...)...)
}

// Save writes through the first healthy backend.
func (f *Fallback) Save(ctx context.Context, rec *SessionRecord) error {
	return f.execute("save", func(s Store) error { return s.Save(ctx, rec) })
}

// Get reads from the first healthy backend. A (nil, nil) miss is a success,
// not a reason to try the next backend.
func (f *Fallback) Get(ctx context.Context, id string) (*SessionRecord, error) {
	var rec *SessionRecord
	err := f.execute("get", func(s Store) error {
		var err error
		rec, err = s.Get(ctx, id)
		return err
	})
	return rec, err
}

// List reads from the first healthy backend.
func (f *Fallback) List(ctx context.Context, agentID string, limit int) ([]SessionRecord, error) {
	var records []SessionRecord
	err := f.execute("list", func(s Store) error {
		var err error
		records, err = s.List(ctx, agentID, limit)
		return err
	})
	return records, err
}

// Delete removes the record from every healthy backend so a fallback copy
// does not resurrect it. It succeeds if at least one backend succeeded.
func (f *Fallback) Delete(ctx context.Context, id string) error {
	var succeeded bool
	errs := make([]error, 0, len(f.backends))
	for _, be := range f.backends {
		if !be.breaker.allow() {
			errs = append(errs, fmt.Errorf("%s: %w", be.name, errBreakerOpen))
			continue
		}
		err := be.store.Delete(ctx, id)
		be.breaker.record(err)
		if err == nil {
			succeeded = true
			continue
		}
		f.log.Warn("record store backend failed",
			"op", "delete",
			"backend", be.name,
			"error", err)
		errs = append(errs, fmt.Errorf("%s: %w", be.name, err))
	}
	if succeeded {
		return nil
	}
	return errors.Join(append([]error{ErrAllBackendsFailed}, errs...)...)
}
