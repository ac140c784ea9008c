package transcript

import (
	"testing"
	"time"
)

func TestAggregator_FlushOrdersUserBeforeModel(t *testing.T) {
	t.Parallel()

	a := NewAggregator()

	// Deltas arrive interleaved, model first.
	a.ApplyOutput("Bonjour! ")
	a.ApplyInput("hello ")
	a.ApplyOutput("Comment allez-vous?")
	a.ApplyInput("there")

	flushed := a.FlushTurn()
	if len(flushed) != 2 {
		t.Fatalf("flushed %d items; want 2", len(flushed))
	}
	if flushed[0].Speaker != SpeakerUser || flushed[0].Text != "hello there" {
		t.Errorf("item 0 = %+v; want user %q", flushed[0], "hello there")
	}
	if flushed[1].Speaker != SpeakerAI || flushed[1].Text != "Bonjour! Comment allez-vous?" {
		t.Errorf("item 1 = %+v; want ai %q", flushed[1], "Bonjour! Comment allez-vous?")
	}
}

func TestAggregator_EmptyBuffersFlushNothing(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	if flushed := a.FlushTurn(); len(flushed) != 0 {
		t.Errorf("flushed %d items from empty buffers; want 0", len(flushed))
	}

	// A model-only turn produces only the ai item.
	a.ApplyOutput("Let me explain.")
	flushed := a.FlushTurn()
	if len(flushed) != 1 || flushed[0].Speaker != SpeakerAI {
		t.Errorf("flushed = %+v; want single ai item", flushed)
	}
}

func TestAggregator_BuffersResetAfterFlush(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.ApplyInput("first turn")
	a.FlushTurn()

	a.ApplyInput("second turn")
	flushed := a.FlushTurn()
	if len(flushed) != 1 || flushed[0].Text != "second turn" {
		t.Errorf("flushed = %+v; earlier turn text leaked", flushed)
	}

	items := a.Items()
	if len(items) != 2 {
		t.Fatalf("history has %d items; want 2", len(items))
	}
	if items[0].Text != "first turn" || items[1].Text != "second turn" {
		t.Errorf("history = %+v; wrong order", items)
	}
}

func TestAggregator_AddUserTextFinalizesImmediately(t *testing.T) {
	t.Parallel()

	a := NewAggregator()

	it := a.AddUserText("typed instead of spoken")
	if it.Speaker != SpeakerUser || it.Text != "typed instead of spoken" {
		t.Errorf("item = %+v; want user %q", it, "typed instead of spoken")
	}
	if a.Pending() {
		t.Error("Pending() = true after AddUserText; the delta buffers must be untouched")
	}

	items := a.Items()
	if len(items) != 1 || items[0].ID == "" {
		t.Fatalf("history = %+v; want one item with an ID", items)
	}

	// An in-flight spoken turn flushes after the typed item.
	a.ApplyInput("and then I said")
	a.FlushTurn()
	items = a.Items()
	if len(items) != 2 || items[1].Text != "and then I said" {
		t.Errorf("history = %+v; typed item must precede the spoken turn", items)
	}
}

func TestAggregator_CaptionSeesRunningText(t *testing.T) {
	t.Parallel()

	type caption struct {
		speaker Speaker
		text    string
	}
	var captions []caption
	a := NewAggregator(WithCaption(func(s Speaker, running string) {
		captions = append(captions, caption{s, running})
	}))

	a.ApplyInput("how ")
	a.ApplyInput("are you")
	a.ApplyOutput("I am well")

	want := []caption{
		{SpeakerUser, "how "},
		{SpeakerUser, "how are you"},
		{SpeakerAI, "I am well"},
	}
	if len(captions) != len(want) {
		t.Fatalf("got %d captions; want %d", len(captions), len(want))
	}
	for i := range want {
		if captions[i] != want[i] {
			t.Errorf("caption %d = %+v; want %+v", i, captions[i], want[i])
		}
	}
}

func TestAggregator_EmptyDeltaIgnored(t *testing.T) {
	t.Parallel()

	var captions int
	a := NewAggregator(WithCaption(func(Speaker, string) { captions++ }))
	a.ApplyInput("")
	a.ApplyOutput("")
	if captions != 0 {
		t.Errorf("captions fired %d times for empty deltas; want 0", captions)
	}
	if a.Pending() {
		t.Error("Pending() should be false after only empty deltas")
	}
}

func TestAggregator_ItemCallbackAndTimestamps(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	var emitted []Item
	a := NewAggregator(
		WithClock(func() time.Time { return now }),
		WithItem(func(it Item) { emitted = append(emitted, it) }),
	)

	a.ApplyInput("hi")
	a.ApplyOutput("hey")
	a.FlushTurn()

	if len(emitted) != 2 {
		t.Fatalf("item callback fired %d times; want 2", len(emitted))
	}
	for i, it := range emitted {
		if !it.At.Equal(now) {
			t.Errorf("item %d timestamp = %v; want %v", i, it.At, now)
		}
		if it.ID == "" {
			t.Errorf("item %d has empty ID", i)
		}
	}
	if emitted[0].ID == emitted[1].ID {
		t.Error("items share an ID")
	}
}

func TestAggregator_ItemsReturnsCopy(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.ApplyInput("original")
	a.FlushTurn()

	items := a.Items()
	items[0].Text = "mutated"
	if a.Items()[0].Text != "original" {
		t.Error("mutating the returned slice changed the history")
	}
}

func TestAggregator_InterruptKeepsOutputBuffer(t *testing.T) {
	t.Parallel()

	// A barge-in stops playback but the transcription deltas already
	// received stay buffered until the next turn boundary.
	a := NewAggregator()
	a.ApplyOutput("I was saying")
	if !a.Pending() {
		t.Fatal("output buffer should be pending")
	}

	a.ApplyInput("wait, stop")
	flushed := a.FlushTurn()
	if len(flushed) != 2 {
		t.Fatalf("flushed %d items; want 2", len(flushed))
	}
	if flushed[1].Text != "I was saying" {
		t.Errorf("model text = %q; want the pre-interrupt deltas", flushed[1].Text)
	}
}
