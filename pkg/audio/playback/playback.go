// Package playback schedules model audio onto an output [Device] without
// gaps. The scheduler keeps a monotonic cursor of where the next chunk must
// begin on the device timeline; consecutive chunks are placed back to back
// regardless of when they arrive, so network jitter never becomes audible
// seams. A barge-in interrupt cancels everything in flight at once.
package playback

import (
	"log/slog"
	"sync"

	"github.com/vanivoice/vani/pkg/audio"
)

// Epsilon is the lookahead added when the cursor has fallen behind the device
// clock. It gives the device a small window to start the first chunk of a
// burst cleanly instead of scheduling into the past.
const Epsilon = 0.02

// Device is an audio output accepting PCM chunks at absolute times on its own
// monotonic clock.
type Device interface {
	// Now returns the current device time in seconds.
	Now() float64

	// ScheduleAt queues a 24 kHz mono frame to start playing at the given
	// device time. The returned handle cancels that chunk. onDone fires
	// once when the chunk finishes playing naturally; it is not called for
	// stopped chunks.
	ScheduleAt(frame audio.Frame, at float64, onDone func()) (Handle, error)
}

// Handle refers to one scheduled chunk.
type Handle interface {
	// Stop cancels the chunk whether or not it has started.
	Stop()
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithObserver registers a callback invoked after every Enqueue with whether
// the chunk was scheduled contiguously (false means an underrun reset the
// cursor first). Used for metrics.
func WithObserver(fn func(contiguous bool)) Option {
	return func(s *Scheduler) { s.observe = fn }
}

// Scheduler owns the gapless playback cursor for one session. Safe for
// concurrent use, though in practice a single event loop feeds it.
type Scheduler struct {
	dev     Device
	log     *slog.Logger
	observe func(contiguous bool)

	mu      sync.Mutex
	cursor  float64
	live    map[int]Handle
	nextKey int
}

// NewScheduler creates a scheduler over dev with the cursor at zero.
func NewScheduler(dev Device, opts ...Option) *Scheduler {
	s := &Scheduler{
		dev:  dev,
		log:  slog.Default(),
		live: make(map[int]Handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue schedules frame immediately after the last scheduled chunk. If the
// cursor has fallen behind the device clock (first chunk, or an underrun
// after the queue drained) it snaps forward to now plus [Epsilon]. A device
// scheduling failure is logged and the frame dropped; playback trouble never
// ends a session.
func (s *Scheduler) Enqueue(frame audio.Frame) {
	if len(frame) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contiguous := true
	if now := s.dev.Now(); s.cursor < now {
		s.cursor = now + Epsilon
		contiguous = false
	}

	key := s.nextKey
	s.nextKey++
	h, err := s.dev.ScheduleAt(frame, s.cursor, func() {
		s.mu.Lock()
		delete(s.live, key)
		s.mu.Unlock()
	})
	if err != nil {
		s.log.Warn("playback schedule failed, dropping chunk",
			"samples", len(frame), "at", s.cursor, "error", err)
		if s.observe != nil {
			s.observe(contiguous)
		}
		return
	}
	s.live[key] = h
	s.cursor += audio.Duration(len(frame), audio.PlaybackRate).Seconds()
	if s.observe != nil {
		s.observe(contiguous)
	}
}

// Interrupt stops every chunk still queued or playing and rewinds the cursor
// to zero, so the next Enqueue re-anchors from the device clock. Called on
// barge-in and during teardown; calling it with nothing in flight is a no-op.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, h := range s.live {
		h.Stop()
		delete(s.live, key)
	}
	s.cursor = 0
}

// Pending reports how many chunks are queued or playing.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}
