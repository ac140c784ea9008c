// Package stdio adapts raw PCM byte streams to the capture and playback
// interfaces. It lets the server run headless with the OS audio stack kept
// outside the process, e.g.:
//
//	arecord -f S16_LE -r 16000 -c 1 | vani | aplay -f S16_LE -r 24000 -c 1
//
// The source reads 16 kHz s16le mono from an io.Reader; the device writes
// 24 kHz s16le mono to an io.Writer, paced on a wall-clock timeline.
package stdio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vanivoice/vani/pkg/audio"
	"github.com/vanivoice/vani/pkg/audio/capture"
	"github.com/vanivoice/vani/pkg/audio/playback"
)

// Source reads capture frames from a byte stream.
type Source struct {
	frames chan audio.Frame
	errCh  chan error

	closeOnce sync.Once
	closer    io.Closer
}

// NewSource starts reading r in frame-sized chunks. When r is also an
// io.Closer, Close closes it.
func NewSource(r io.Reader) *Source {
	s := &Source{
		frames: make(chan audio.Frame, 8),
		errCh:  make(chan error, 1),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	go s.read(r)
	return s
}

func (s *Source) read(r io.Reader) {
	defer close(s.frames)
	buf := make([]byte, audio.FrameSamples*2)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				s.errCh <- err
			}
			return
		}
		s.frames <- audio.DecodeBytes(buf)
	}
}

// ReadFrame returns the next frame, io.EOF once the stream ends, or the
// context error.
func (s *Source) ReadFrame(ctx context.Context) (audio.Frame, error) {
	select {
	case frame, ok := <-s.frames:
		if !ok {
			select {
			case err := <-s.errCh:
				return nil, fmt.Errorf("stdio: read input: %w", err)
			default:
				return nil, io.EOF
			}
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Rate returns the capture sample rate.
func (s *Source) Rate() int { return audio.CaptureRate }

// Close closes the underlying reader when it supports closing.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

var _ capture.Source = (*Source)(nil)

// Device writes playback frames to a byte stream on a wall-clock timeline.
// Writes are serialized; each scheduled chunk is written when its start time
// arrives and reported done after its natural duration.
type Device struct {
	log   *slog.Logger
	epoch time.Time

	mu sync.Mutex
	w  io.Writer
}

// DeviceOption configures a [Device].
type DeviceOption func(*Device)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) DeviceOption {
	return func(d *Device) { d.log = l }
}

// NewDevice creates a device writing to w with its clock starting at zero.
func NewDevice(w io.Writer, opts ...DeviceOption) *Device {
	d := &Device{
		log:   slog.Default(),
		epoch: time.Now(),
		w:     w,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Now returns seconds since the device was created.
func (d *Device) Now() float64 {
	return time.Since(d.epoch).Seconds()
}

// ScheduleAt queues frame to be written when the device clock reaches at.
func (d *Device) ScheduleAt(frame audio.Frame, at float64, onDone func()) (playback.Handle, error) {
	c := &chunk{stopped: make(chan struct{})}
	go d.play(c, frame, at, onDone)
	return c, nil
}

func (d *Device) play(c *chunk, frame audio.Frame, at float64, onDone func()) {
	if delay := at - d.Now(); delay > 0 {
		select {
		case <-time.After(time.Duration(delay * float64(time.Second))):
		case <-c.stopped:
			return
		}
	}
	select {
	case <-c.stopped:
		return
	default:
	}

	d.mu.Lock()
	_, err := d.w.Write(audio.EncodeBytes(frame))
	d.mu.Unlock()
	if err != nil {
		d.log.Warn("stdio playback write failed", "err", err)
		return
	}

	select {
	case <-time.After(audio.Duration(len(frame), audio.PlaybackRate)):
		if onDone != nil {
			onDone()
		}
	case <-c.stopped:
	}
}

type chunk struct {
	once    sync.Once
	stopped chan struct{}
}

// Stop cancels the chunk. Chunks already written keep whatever bytes left
// the process.
func (c *chunk) Stop() {
	c.once.Do(func() { close(c.stopped) })
}

var _ playback.Device = (*Device)(nil)
