package stdio_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/vanivoice/vani/pkg/audio"
	"github.com/vanivoice/vani/pkg/audio/stdio"
)

// lockedBuffer is a concurrency-safe write sink.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func TestSource_ReadsFrameSizedChunks(t *testing.T) {
	t.Parallel()

	frame := make(audio.Frame, audio.FrameSamples)
	for i := range frame {
		frame[i] = int16(i)
	}
	// Two full frames plus a truncated tail that must be discarded.
	input := append(audio.EncodeBytes(frame), audio.EncodeBytes(frame)...)
	input = append(input, 0x01, 0x02)

	src := stdio.NewSource(bytes.NewReader(input))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := src.ReadFrame(ctx)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if len(got) != audio.FrameSamples || got[1] != 1 {
			t.Fatalf("frame %d: got %d samples, sample[1]=%d", i, len(got), got[1])
		}
	}
	if _, err := src.ReadFrame(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("after stream end: got %v, want io.EOF", err)
	}
}

func TestSource_ContextCancel(t *testing.T) {
	t.Parallel()

	r, w := io.Pipe()
	defer w.Close()
	src := stdio.NewSource(r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.ReadFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDevice_WritesScheduledChunk(t *testing.T) {
	t.Parallel()

	var sink lockedBuffer
	dev := stdio.NewDevice(&sink)

	done := make(chan struct{})
	frame := make(audio.Frame, 240) // 10 ms at 24 kHz
	if _, err := dev.ScheduleAt(frame, 0, func() { close(done) }); err != nil {
		t.Fatalf("ScheduleAt: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("chunk never finished")
	}
	if got, want := sink.Len(), len(frame)*2; got != want {
		t.Errorf("bytes written: got %d, want %d", got, want)
	}
}

func TestDevice_StoppedChunkIsNotWritten(t *testing.T) {
	t.Parallel()

	var sink lockedBuffer
	dev := stdio.NewDevice(&sink)

	frame := make(audio.Frame, 240)
	h, err := dev.ScheduleAt(frame, dev.Now()+0.2, func() {
		t.Error("onDone fired for a stopped chunk")
	})
	if err != nil {
		t.Fatalf("ScheduleAt: %v", err)
	}
	h.Stop()

	time.Sleep(300 * time.Millisecond)
	if got := sink.Len(); got != 0 {
		t.Errorf("bytes written after Stop: got %d, want 0", got)
	}
}
