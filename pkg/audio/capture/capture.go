// Package capture reads microphone frames from a [Source] and applies the
// input conditioning the upstream model expects: an RMS noise gate that
// suppresses ambient-level frames, and a fixed gain boost on everything that
// passes. Output frames are always 16 kHz mono.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/vanivoice/vani/pkg/audio"
)

// ErrUnavailable is returned when the capture device cannot be opened or
// disappears mid-session. It is fatal to the session that owns the source.
var ErrUnavailable = errors.New("capture: device unavailable")

const (
	// DefaultThreshold is the RMS noise-gate threshold in the normalized
	// float domain. Frames quieter than this are treated as ambient noise.
	DefaultThreshold = 0.0015

	// DefaultGain is the multiplier applied to frames that pass the gate.
	DefaultGain = 2.5
)

// Source produces raw capture frames. Implementations wrap a concrete audio
// device or a test fixture. ReadFrame blocks until a frame is available, the
// context is cancelled, or the device fails.
type Source interface {
	// ReadFrame returns the next frame of mono PCM at Rate().
	ReadFrame(ctx context.Context) (audio.Frame, error)

	// Rate is the sample rate the source delivers frames at.
	Rate() int

	// Close releases the device. Safe to call more than once.
	Close() error
}

// Option configures a Gate.
type Option func(*Gate)

// WithThreshold overrides the RMS gate threshold.
func WithThreshold(threshold float64) Option {
	return func(g *Gate) { g.threshold = threshold }
}

// WithGain overrides the post-gate gain multiplier.
func WithGain(gain float64) Option {
	return func(g *Gate) { g.gain = gain }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// WithObserver registers a per-frame callback invoked with whether the frame
// passed the gate. Used for metrics.
func WithObserver(fn func(passed bool)) Option {
	return func(g *Gate) { g.observe = fn }
}

// Gate wraps a [Source] with noise gating, gain, and rate normalization.
// Not safe for concurrent ReadFrame calls; one goroutine owns the pump.
type Gate struct {
	src       Source
	threshold float64
	gain      float64
	log       *slog.Logger
	observe   func(passed bool)

	passed     atomic.Int64
	suppressed atomic.Int64
}

// NewGate wraps src. The zero configuration matches the levels the live model
// is tuned for.
func NewGate(src Source, opts ...Option) *Gate {
	g := &Gate{
		src:       src,
		threshold: DefaultThreshold,
		gain:      DefaultGain,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ReadFrame returns the next frame that passes the noise gate, with gain
// applied and resampled to [audio.CaptureRate] if the source runs at a
// different rate. Suppressed frames are consumed silently; during sustained
// silence ReadFrame blocks until speech resumes or ctx is cancelled.
func (g *Gate) ReadFrame(ctx context.Context) (audio.Frame, error) {
	for {
		frame, err := g.src.ReadFrame(ctx)
		if err != nil {
			return nil, err
		}
		if rate := g.src.Rate(); rate != audio.CaptureRate {
			frame = audio.Resample(frame, rate, audio.CaptureRate)
		}
		if audio.RMS(frame) < g.threshold {
			g.suppressed.Add(1)
			if g.observe != nil {
				g.observe(false)
			}
			continue
		}
		audio.ApplyGain(frame, g.gain)
		g.passed.Add(1)
		if g.observe != nil {
			g.observe(true)
		}
		return frame, nil
	}
}

// Passed reports how many frames cleared the gate since construction.
func (g *Gate) Passed() int64 { return g.passed.Load() }

// Suppressed reports how many frames the gate dropped since construction.
func (g *Gate) Suppressed() int64 { return g.suppressed.Load() }

// Close closes the underlying source.
func (g *Gate) Close() error {
	return g.src.Close()
}

var _ Source = (*Gate)(nil)

// Rate always reports [audio.CaptureRate]; the gate normalizes the source
// rate on the way through.
func (g *Gate) Rate() int { return audio.CaptureRate }
