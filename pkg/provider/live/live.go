// Package live defines the streaming duplex transport between a session and a
// remote speech model. A connected [Session] accepts microphone audio and
// out-of-band text upstream, and surfaces everything the model sends back as
// a single ordered stream of [Event] values. One consumer goroutine ranges
// over Events; all session state transitions hang off that stream, so event
// ordering is exactly wire ordering.
package live

import "context"

// Config describes one session's model setup.
type Config struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// Instructions is the system instruction for the whole session.
	Instructions string

	// Voice is the provider-specific prebuilt voice name.
	Voice string
}

// Provider establishes live sessions against one remote speech service.
type Provider interface {
	// Connect opens a session. The returned session is ready for audio as
	// soon as Connect returns; the provider completes its setup handshake
	// internally.
	Connect(ctx context.Context, cfg Config) (Session, error)
}

// Session is one open duplex stream.
type Session interface {
	// SendAudio delivers one chunk of 16 kHz s16le mono PCM to the model.
	SendAudio(ctx context.Context, pcm []byte) error

	// SendText injects a text turn into the conversation, as if typed.
	// The model responds to it the same way it responds to speech.
	SendText(ctx context.Context, text string) error

	// Events returns the ordered event stream. The channel is closed after
	// a [Closed] event is delivered; no events follow it.
	Events() <-chan Event

	// Err returns the first terminal error, or nil after a clean close.
	Err() error

	// Close tears the session down. Idempotent; the event stream still
	// ends with a [Closed] event.
	Close() error
}

// Event is one item on a session's ordered stream. Implementations are the
// variant types below; the unexported method seals the set.
type Event interface {
	liveEvent()
}

// AudioDelta carries one chunk of synthesized model speech, 24 kHz s16le
// mono PCM.
type AudioDelta struct {
	PCM []byte
}

// InputTranscript carries an incremental transcription delta of the user's
// speech.
type InputTranscript struct {
	Text string
}

// OutputTranscript carries an incremental transcription delta of the model's
// speech.
type OutputTranscript struct {
	Text string
}

// Interrupted signals that the user barged in and the model abandoned its
// current spoken turn. Everything already queued for playback is stale.
type Interrupted struct{}

// TurnComplete signals the end of a conversational turn. Accumulated
// transcript deltas for the turn are final once this arrives.
type TurnComplete struct{}

// Closed is the last event on every stream. Err is nil when the session
// ended cleanly and carries the terminal error otherwise.
type Closed struct {
	Err error
}

func (AudioDelta) liveEvent()       {}
func (InputTranscript) liveEvent()  {}
func (OutputTranscript) liveEvent() {}
func (Interrupted) liveEvent()      {}
func (TurnComplete) liveEvent()     {}
func (Closed) liveEvent()           {}
