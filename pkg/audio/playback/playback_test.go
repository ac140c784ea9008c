package playback_test

import (
	"errors"
	"math"
	"testing"

	"github.com/vanivoice/vani/pkg/audio"
	"github.com/vanivoice/vani/pkg/audio/mock"
	"github.com/vanivoice/vani/pkg/audio/playback"
)

// chunk returns a playback frame of the given duration in seconds.
func chunk(seconds float64) audio.Frame {
	return make(audio.Frame, int(seconds*audio.PlaybackRate))
}

func TestScheduler_BackToBackChunksAreContiguous(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{}
	s := playback.NewScheduler(dev)

	// Three 100 ms chunks arriving in a burst.
	s.Enqueue(chunk(0.1))
	s.Enqueue(chunk(0.1))
	s.Enqueue(chunk(0.1))

	calls := dev.Calls()
	if len(calls) != 3 {
		t.Fatalf("scheduled calls: got %d, want 3", len(calls))
	}
	// First chunk anchors at now + epsilon; the rest follow exactly.
	if got, want := calls[0].At, playback.Epsilon; math.Abs(got-want) > 1e-9 {
		t.Errorf("chunk 0 start: got %v, want %v", got, want)
	}
	for i := 1; i < 3; i++ {
		prevEnd := calls[i-1].At + 0.1
		if math.Abs(calls[i].At-prevEnd) > 1e-9 {
			t.Errorf("chunk %d start: got %v, want %v (gapless)", i, calls[i].At, prevEnd)
		}
	}
}

func TestScheduler_UnderrunResetsCursor(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{}
	s := playback.NewScheduler(dev)

	s.Enqueue(chunk(0.1))
	// The queue drains: device time passes the end of the last chunk.
	dev.Advance(1.0)
	s.Enqueue(chunk(0.1))

	calls := dev.Calls()
	if len(calls) != 2 {
		t.Fatalf("scheduled calls: got %d, want 2", len(calls))
	}
	if got, want := calls[1].At, 1.0+playback.Epsilon; math.Abs(got-want) > 1e-9 {
		t.Errorf("post-underrun start: got %v, want %v", got, want)
	}
}

func TestScheduler_InterruptStopsEverything(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{}
	s := playback.NewScheduler(dev)

	s.Enqueue(chunk(0.1))
	s.Enqueue(chunk(0.1))
	if got := s.Pending(); got != 2 {
		t.Fatalf("pending before interrupt: got %d, want 2", got)
	}

	s.Interrupt()

	for i, c := range dev.Calls() {
		if !c.Stopped() {
			t.Errorf("chunk %d not stopped by interrupt", i)
		}
	}
	if got := s.Pending(); got != 0 {
		t.Errorf("pending after interrupt: got %d, want 0", got)
	}

	// The next chunk re-anchors from the device clock, not the old cursor.
	dev.Advance(0.5)
	s.Enqueue(chunk(0.1))
	calls := dev.Calls()
	last := calls[len(calls)-1]
	if got, want := last.At, 0.5+playback.Epsilon; math.Abs(got-want) > 1e-9 {
		t.Errorf("post-interrupt start: got %v, want %v", got, want)
	}
}

func TestScheduler_InterruptWithNothingPending(t *testing.T) {
	t.Parallel()

	s := playback.NewScheduler(&mock.Device{})
	s.Interrupt()
	if got := s.Pending(); got != 0 {
		t.Errorf("pending: got %d, want 0", got)
	}
}

func TestScheduler_CompletionRemovesHandle(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{}
	s := playback.NewScheduler(dev)
	s.Enqueue(chunk(0.1))

	dev.Calls()[0].Finish()
	if got := s.Pending(); got != 0 {
		t.Errorf("pending after completion: got %d, want 0", got)
	}
}

func TestScheduler_DeviceFailureDropsChunk(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{ScheduleError: errors.New("device gone")}
	var resets int
	s := playback.NewScheduler(dev, playback.WithObserver(func(contiguous bool) {
		if !contiguous {
			resets++
		}
	}))

	// Must not panic or leave phantom pending chunks.
	s.Enqueue(chunk(0.1))
	if got := s.Pending(); got != 0 {
		t.Errorf("pending after failed schedule: got %d, want 0", got)
	}
	if resets != 1 {
		t.Errorf("observer resets: got %d, want 1", resets)
	}
}

func TestScheduler_EmptyFrameIgnored(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{}
	s := playback.NewScheduler(dev)
	s.Enqueue(nil)
	if got := len(dev.Calls()); got != 0 {
		t.Errorf("scheduled calls: got %d, want 0", got)
	}
}
