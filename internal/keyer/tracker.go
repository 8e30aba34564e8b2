// internal/keyer/tracker.go
// Package keyer turns WinKeyer contact status into key press/release events and
// drives a key injector with them.
package keyer

import (
	"fmt"
	"sync"
	"time"

	"github.com/ColonelBlimp/wklink/internal/winkeyer"
)

// Contact identifies one paddle contact.
type Contact uint8

const (
	Dit Contact = iota
	Dah
)

func (c Contact) String() string {
	switch c {
	case Dit:
		return "dit"
	case Dah:
		return "dah"
	default:
		return "unknown"
	}
}

// Edge is the direction of a contact change.
type Edge uint8

const (
	Press Edge = iota
	Release
)

func (e Edge) String() string {
	switch e {
	case Press:
		return "press"
	case Release:
		return "release"
	default:
		return "unknown"
	}
}

// KeyEvent is one contact transition. For a given contact, Press and Release
// strictly alternate starting with Press.
type KeyEvent struct {
	Contact Contact
	Edge    Edge
	// Time carries a monotonic reading.
	Time time.Time
}

func (e KeyEvent) String() string {
	return fmt.Sprintf("%s(%s)", e.Edge, e.Contact)
}

// ContactState is the last observed contact status.
type ContactState struct {
	Dit bool
	Dah bool
}

// Tracker edge-detects contact changes between consecutive status bytes.
type Tracker struct {
	mu    sync.Mutex
	state ContactState
	now   func() time.Time
}

// NewTracker creates a tracker with both contacts open.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Update compares status against the previous status and returns the resulting
// events: none when nothing changed, dit before dah when both changed.
func (t *Tracker) Update(status winkeyer.Status) []KeyEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	var events []KeyEvent
	ts := t.now()
	if status.DitClosed != t.state.Dit {
		events = append(events, KeyEvent{Contact: Dit, Edge: edgeFor(status.DitClosed), Time: ts})
	}
	if status.DahClosed != t.state.Dah {
		events = append(events, KeyEvent{Contact: Dah, Edge: edgeFor(status.DahClosed), Time: ts})
	}
	t.state = ContactState{Dit: status.DitClosed, Dah: status.DahClosed}
	return events
}

// Reset forces both contacts open and returns a synthetic Release for each
// contact that was closed.
func (t *Tracker) Reset() []KeyEvent {
	return t.Update(winkeyer.Status{})
}

// State returns the last observed contact state.
func (t *Tracker) State() ContactState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func edgeFor(closed bool) Edge {
	if closed {
		return Press
	}
	return Release
}
