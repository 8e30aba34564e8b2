// internal/bridge/state.go
// Package bridge couples an open WinKeyer session to the key injector: a
// single reader goroutine turns bytes into key events, and a controller owns
// the connect/disconnect lifecycle and guarantees no key is left held.
package bridge

import "errors"

// ErrInvalidState indicates an operation not allowed in the current state
var ErrInvalidState = errors.New("invalid session state")

// State is the session lifecycle state. The only transitions are
// Closed→Opening→Open→Closing→Closed and Opening→Closed.
type State int32

const (
	Closed State = iota
	Opening
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}
