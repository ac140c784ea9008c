package capture_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/vanivoice/vani/pkg/audio"
	"github.com/vanivoice/vani/pkg/audio/capture"
	"github.com/vanivoice/vani/pkg/audio/mock"
)

// constantFrame returns a frame whose every sample is value, giving a
// predictable RMS of |value|/32768.
func constantFrame(value int16, n int) audio.Frame {
	frame := make(audio.Frame, n)
	for i := range frame {
		frame[i] = value
	}
	return frame
}

func TestGate_SuppressesBelowThreshold(t *testing.T) {
	t.Parallel()

	src := mock.NewSource()
	gate := capture.NewGate(src)

	// RMS of a constant 20 frame is 20/32768 ≈ 0.0006, below 0.0015.
	src.Frames <- constantFrame(20, audio.FrameSamples)
	// RMS of a constant 200 frame is ≈ 0.006, above the gate.
	src.Frames <- constantFrame(200, audio.FrameSamples)

	frame, err := gate.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	// The quiet frame was consumed and dropped; the loud one came through
	// with gain applied.
	if want := int16(500); frame[0] != want {
		t.Errorf("first sample: got %d, want %d (200 * 2.5)", frame[0], want)
	}
	if gate.Suppressed() != 1 {
		t.Errorf("suppressed count: got %d, want 1", gate.Suppressed())
	}
	if gate.Passed() != 1 {
		t.Errorf("passed count: got %d, want 1", gate.Passed())
	}
}

func TestGate_CustomThresholdAndGain(t *testing.T) {
	t.Parallel()

	src := mock.NewSource()
	gate := capture.NewGate(src, capture.WithThreshold(0.5), capture.WithGain(1.0))

	// ≈0.006 RMS, loud enough for the default gate but not for 0.5.
	src.Frames <- constantFrame(200, audio.FrameSamples)
	close(src.Frames)

	if _, err := gate.ReadFrame(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("ReadFrame after exhausting frames: got %v, want io.EOF", err)
	}
	if gate.Suppressed() != 1 {
		t.Errorf("suppressed count: got %d, want 1", gate.Suppressed())
	}
}

func TestGate_GainClampsAtFullScale(t *testing.T) {
	t.Parallel()

	src := mock.NewSource()
	gate := capture.NewGate(src)
	src.Frames <- constantFrame(30000, audio.FrameSamples)

	frame, err := gate.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame[0] != 32767 {
		t.Errorf("got %d, want 32767 (clamped)", frame[0])
	}
}

func TestGate_ResamplesSourceRate(t *testing.T) {
	t.Parallel()

	src := mock.NewSource()
	src.SampleRate = 48000
	gate := capture.NewGate(src, capture.WithGain(1.0))
	src.Frames <- constantFrame(3000, 48)

	frame, err := gate.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(frame) != 16 {
		t.Errorf("resampled frame length: got %d, want 16", len(frame))
	}
	if gate.Rate() != audio.CaptureRate {
		t.Errorf("gate rate: got %d, want %d", gate.Rate(), audio.CaptureRate)
	}
}

func TestGate_BlocksDuringSilenceUntilCancel(t *testing.T) {
	t.Parallel()

	src := mock.NewSource()
	gate := capture.NewGate(src)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := gate.ReadFrame(ctx)
		errCh <- err
	}()

	// Feed only silence; ReadFrame must not return.
	src.Frames <- constantFrame(0, audio.FrameSamples)
	select {
	case err := <-errCh:
		t.Fatalf("ReadFrame returned during silence: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ReadFrame did not return after cancel")
	}
}

func TestGate_ObserverSeesBothOutcomes(t *testing.T) {
	t.Parallel()

	src := mock.NewSource()
	var passed, suppressed int
	gate := capture.NewGate(src, capture.WithObserver(func(ok bool) {
		if ok {
			passed++
		} else {
			suppressed++
		}
	}))

	src.Frames <- constantFrame(10, audio.FrameSamples)
	src.Frames <- constantFrame(500, audio.FrameSamples)
	if _, err := gate.ReadFrame(context.Background()); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if passed != 1 || suppressed != 1 {
		t.Errorf("observer counts: passed=%d suppressed=%d, want 1/1", passed, suppressed)
	}
}

func TestGate_CloseClosesSource(t *testing.T) {
	t.Parallel()

	src := mock.NewSource()
	gate := capture.NewGate(src)
	if err := gate.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if src.CallCountClose() != 1 {
		t.Errorf("source close count: got %d, want 1", src.CallCountClose())
	}
}
