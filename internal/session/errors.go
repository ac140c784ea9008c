package session

import "errors"

// Error taxonomy for a session's lifecycle. Fatal errors leave the session in
// [StateErrored]; recovering requires starting a fresh session.
var (
	// ErrCaptureUnavailable means the microphone source could not be
	// acquired. The session never reaches the active state.
	ErrCaptureUnavailable = errors.New("session: capture unavailable")

	// ErrConnect means the remote session setup failed.
	ErrConnect = errors.New("session: connect failed")

	// ErrTransport means the live connection failed mid-session. Terminal,
	// no automatic reconnect.
	ErrTransport = errors.New("session: transport failed")

	// ErrAnalysis means post-session report generation failed. Recoverable:
	// the session record is still saved without a report.
	ErrAnalysis = errors.New("session: analysis failed")

	// ErrNotActive is returned by operations that require an active session.
	ErrNotActive = errors.New("session: not active")

	// ErrAlreadyStarted is returned by Start when the session has left the
	// idle state.
	ErrAlreadyStarted = errors.New("session: already started")
)
