package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vanivoice/vani/internal/agent"
	"github.com/vanivoice/vani/internal/session"
)

// ErrUnknownSession is returned when no live session carries the given ID.
var ErrUnknownSession = errors.New("api: unknown session")

// ControllerFactory builds a ready-to-start controller for one agent
// profile. The factory is where the server's shared collaborators (live
// provider, audio devices, analyzer, record store) get injected.
type ControllerFactory func(profile agent.Profile) (*session.Controller, error)

// Manager tracks live session controllers. Sessions are removed from the
// manager as soon as they reach a terminal state; finished conversations are
// served from the record store instead.
type Manager struct {
	log        *slog.Logger
	newSession ControllerFactory

	mu       sync.Mutex
	sessions map[string]*session.Controller
}

// ManagerOption is a functional option for configuring a [Manager].
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger. Defaults to slog.Default().
func WithManagerLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a Manager that builds controllers with factory.
func NewManager(factory ControllerFactory, opts ...ManagerOption) *Manager {
	m := &Manager{
		log:        slog.Default(),
		newSession: factory,
		sessions:   make(map[string]*session.Controller),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates and starts a session for the given profile. The controller
// is tracked until it reaches a terminal state.
func (m *Manager) Start(ctx context.Context, profile agent.Profile) (*session.Controller, error) {
	ctrl, err := m.newSession(profile)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[ctrl.ID()] = ctrl
	m.mu.Unlock()
	m.log.Info("session registered", "session_id", ctrl.ID(), "agent_id", profile.ID)

	go func() {
		<-ctrl.Done()
		m.mu.Lock()
		delete(m.sessions, ctrl.ID())
		m.mu.Unlock()
		m.log.Info("session released",
			"session_id", ctrl.ID(),
			"state", ctrl.State())
	}()
	return ctrl, nil
}

// Get returns the live controller with the given ID.
func (m *Manager) Get(id string) (*session.Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctrl, ok := m.sessions[id]
	return ctrl, ok
}

// End finishes the session with the given ID and blocks until it reaches a
// terminal state.
func (m *Manager) End(ctx context.Context, id string) error {
	ctrl, ok := m.Get(id)
	if !ok {
		return ErrUnknownSession
	}
	return ctrl.End(ctx)
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown ends every live session and waits for all of them.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*session.Controller, 0, len(m.sessions))
	for _, ctrl := range m.sessions {
		live = append(live, ctrl)
	}
	m.mu.Unlock()

	errCh := make(chan error, len(live))
	var wg sync.WaitGroup
	for _, ctrl := range live {
		wg.Add(1)
		go func(c *session.Controller) {
			defer wg.Done()
			errCh <- c.End(ctx)
		}(ctrl)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
