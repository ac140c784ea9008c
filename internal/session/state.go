package session

// State is the lifecycle phase of a session. Transitions are one-directional:
//
//	idle → connecting → active → analyzing → ended
//
// with connecting|active → errored on fatal failures. Both ended and errored
// are terminal.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateAnalyzing  State = "analyzing"
	StateEnded      State = "ended"
	StateErrored    State = "errored"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateErrored
}
