// Package mock provides in-memory implementations of [capture.Source] and
// [playback.Device] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so tests can
// assert on counts and arguments, and expose exported fields the test sets to
// control behavior.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/vanivoice/vani/pkg/audio"
	"github.com/vanivoice/vani/pkg/audio/capture"
	"github.com/vanivoice/vani/pkg/audio/playback"
)

// Source is a scripted [capture.Source]. Frames are delivered from the Frames
// channel; closing it makes ReadFrame return [io.EOF].
type Source struct {
	// Frames feeds ReadFrame. Push frames from the test.
	Frames chan audio.Frame

	// SampleRate is returned by Rate. Defaults to [audio.CaptureRate] when 0.
	SampleRate int

	// ReadError, when set, is returned by every ReadFrame call.
	ReadError error

	// CloseError is returned by Close.
	CloseError error

	mu             sync.Mutex
	callCountClose int
}

// NewSource returns a Source with a buffered frame channel.
func NewSource() *Source {
	return &Source{Frames: make(chan audio.Frame, 64)}
}

// ReadFrame returns the next scripted frame, io.EOF when Frames is closed, or
// the context error.
func (s *Source) ReadFrame(ctx context.Context) (audio.Frame, error) {
	if s.ReadError != nil {
		return nil, s.ReadError
	}
	select {
	case frame, ok := <-s.Frames:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Rate returns SampleRate, defaulting to [audio.CaptureRate].
func (s *Source) Rate() int {
	if s.SampleRate == 0 {
		return audio.CaptureRate
	}
	return s.SampleRate
}

// Close records the call and returns CloseError.
func (s *Source) Close() error {
	s.mu.Lock()
	s.callCountClose++
	s.mu.Unlock()
	return s.CloseError
}

// CallCountClose reports how many times Close was called.
func (s *Source) CallCountClose() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCountClose
}

var _ capture.Source = (*Source)(nil)

// Scheduled records one ScheduleAt call on a [Device].
type Scheduled struct {
	Frame audio.Frame
	At    float64

	mu      sync.Mutex
	stopped bool
	onDone  func()
}

// Stop marks the chunk cancelled.
func (c *Scheduled) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

// Stopped reports whether Stop was called.
func (c *Scheduled) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Finish simulates natural playback completion, firing the onDone callback
// unless the chunk was stopped.
func (c *Scheduled) Finish() {
	c.mu.Lock()
	done := c.onDone
	stopped := c.stopped
	c.onDone = nil
	c.mu.Unlock()
	if done != nil && !stopped {
		done()
	}
}

// Device is a [playback.Device] with a test-controlled clock.
type Device struct {
	// ScheduleError, when set, is returned by every ScheduleAt call.
	ScheduleError error

	mu    sync.Mutex
	clock float64
	calls []*Scheduled
}

// Now returns the fake device time.
func (d *Device) Now() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock
}

// Advance moves the fake device time forward.
func (d *Device) Advance(seconds float64) {
	d.mu.Lock()
	d.clock += seconds
	d.mu.Unlock()
}

// ScheduleAt records the chunk and returns its handle.
func (d *Device) ScheduleAt(frame audio.Frame, at float64, onDone func()) (playback.Handle, error) {
	if d.ScheduleError != nil {
		return nil, d.ScheduleError
	}
	c := &Scheduled{Frame: frame, At: at, onDone: onDone}
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
	return c, nil
}

// Calls returns every recorded ScheduleAt call in order.
func (d *Device) Calls() []*Scheduled {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Scheduled, len(d.calls))
	copy(out, d.calls)
	return out
}

var _ playback.Device = (*Device)(nil)
