// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions. Use
// Session to script the model's event stream and inspect what the controller
// sent upstream.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.Emit(live.AudioDelta{PCM: pcm})
//	sess.Finish(nil)
package mock

import (
	"context"
	"sync"

	"github.com/vanivoice/vani/pkg/provider/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the Config passed to Connect.
	Cfg live.Config
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. If nil, Connect returns a fresh
	// default Session.
	Session live.Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.Config) (live.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// Calls returns a copy of every recorded Connect call.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

var _ live.Provider = (*Provider)(nil)

// Session is a mock implementation of live.Session. Script the model side
// with Emit and Finish; inspect the client side with SentAudio and SentText.
type Session struct {
	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SendTextErr, if non-nil, is returned by every SendText call.
	SendTextErr error

	mu         sync.Mutex
	events     chan live.Event
	errVal     error
	sentAudio  [][]byte
	sentText   []string
	closeCount int
	finished   bool
}

// NewSession returns a Session with a buffered event stream.
func NewSession() *Session {
	return &Session{events: make(chan live.Event, 256)}
}

// Emit places an event on the stream. Panics if called after Finish, which
// mirrors a real transport never emitting past Closed.
func (s *Session) Emit(ev live.Event) {
	s.events <- ev
}

// Finish ends the stream with a Closed event carrying err and closes the
// events channel. Idempotent.
func (s *Session) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.errVal = err
	s.events <- live.Closed{Err: err}
	close(s.events)
}

// Abort ends the stream without delivering a Closed event, recording err as
// the terminal error. This mirrors a transport whose events buffer was full
// when it shut down, leaving Err as the only trace of the failure.
func (s *Session) Abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.errVal = err
	close(s.events)
}

// SendAudio records the chunk and returns SendAudioErr.
func (s *Session) SendAudio(_ context.Context, pcm []byte) error {
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.sentAudio = append(s.sentAudio, cp)
	return nil
}

// SendText records the text and returns SendTextErr.
func (s *Session) SendText(_ context.Context, text string) error {
	if s.SendTextErr != nil {
		return s.SendTextErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentText = append(s.sentText, text)
	return nil
}

// Events returns the scripted event stream.
func (s *Session) Events() <-chan live.Event { return s.events }

// Err returns the error passed to Finish or Abort.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close records the call and finishes the stream cleanly if the script has
// not done so already.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closeCount++
	alreadyFinished := s.finished
	if !alreadyFinished {
		s.finished = true
		s.events <- live.Closed{Err: nil}
		close(s.events)
	}
	s.mu.Unlock()
	return nil
}

// SentAudio returns a copy of every chunk passed to SendAudio.
func (s *Session) SentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sentAudio))
	copy(out, s.sentAudio)
	return out
}

// SentText returns a copy of every string passed to SendText.
func (s *Session) SentText() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sentText))
	copy(out, s.sentText)
	return out
}

// CloseCount reports how many times Close was called.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

var _ live.Session = (*Session)(nil)
