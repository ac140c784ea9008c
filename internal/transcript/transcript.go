// Package transcript turns the model's incremental transcription deltas into
// a finalized conversation history.
//
// While a turn is in flight the model streams partial text for both sides of
// the conversation. The [Aggregator] keeps one running buffer per channel and
// reports every delta through a live-caption callback. When the model signals
// the end of a turn, the buffers are flushed into immutable [Item] values:
// the user's side always lands in the history before the model's side, no
// matter how the deltas interleaved on the wire.
package transcript

import (
	"time"

	"github.com/google/uuid"
)

// Speaker identifies which side of the conversation produced an item.
type Speaker string

const (
	// SpeakerUser is the human side of the conversation.
	SpeakerUser Speaker = "user"

	// SpeakerAI is the model side of the conversation.
	SpeakerAI Speaker = "ai"
)

// Item is one finalized utterance. Items never change after the flush that
// produced them.
type Item struct {
	ID      string    `json:"id"`
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the timestamp source. Tests use this for deterministic
// item timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithCaption registers a callback fired on every delta with the speaker and
// the full running text of the in-flight utterance.
func WithCaption(fn func(speaker Speaker, running string)) Option {
	return func(a *Aggregator) { a.caption = fn }
}

// WithItem registers a callback fired for each item a flush finalizes, in
// history order.
func WithItem(fn func(Item)) Option {
	return func(a *Aggregator) { a.item = fn }
}

// Aggregator accumulates transcription deltas for one session. It is not
// safe for concurrent use; the session event loop is its only caller.
type Aggregator struct {
	now     func() time.Time
	caption func(Speaker, string)
	item    func(Item)

	input  string
	output string
	items  []Item
}

// NewAggregator returns an empty aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ApplyInput appends a user-speech transcription delta.
func (a *Aggregator) ApplyInput(delta string) {
	if delta == "" {
		return
	}
	a.input += delta
	if a.caption != nil {
		a.caption(SpeakerUser, a.input)
	}
}

// ApplyOutput appends a model-speech transcription delta.
func (a *Aggregator) ApplyOutput(delta string) {
	if delta == "" {
		return
	}
	a.output += delta
	if a.caption != nil {
		a.caption(SpeakerAI, a.output)
	}
}

// AddUserText finalizes text as a user item immediately, bypassing the delta
// buffers. Typed messages arrive whole and produce no transcription deltas,
// so they enter the history the moment they are sent.
func (a *Aggregator) AddUserText(text string) Item {
	return a.finalize(SpeakerUser, text)
}

// FlushTurn finalizes the running buffers at a turn boundary. The user
// buffer is flushed before the model buffer; empty buffers produce nothing.
// Returns the items added to the history, in order.
func (a *Aggregator) FlushTurn() []Item {
	var flushed []Item
	if a.input != "" {
		flushed = append(flushed, a.finalize(SpeakerUser, a.input))
		a.input = ""
	}
	if a.output != "" {
		flushed = append(flushed, a.finalize(SpeakerAI, a.output))
		a.output = ""
	}
	return flushed
}

func (a *Aggregator) finalize(speaker Speaker, text string) Item {
	it := Item{
		ID:      uuid.NewString(),
		Speaker: speaker,
		Text:    text,
		At:      a.now(),
	}
	a.items = append(a.items, it)
	if a.item != nil {
		a.item(it)
	}
	return it
}

// Items returns a copy of the finalized history in order.
func (a *Aggregator) Items() []Item {
	out := make([]Item, len(a.items))
	copy(out, a.items)
	return out
}

// Pending reports whether either channel holds unflushed text.
func (a *Aggregator) Pending() bool {
	return a.input != "" || a.output != ""
}
