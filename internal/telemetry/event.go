// internal/telemetry/event.go
// Package telemetry fans observational events from the bridge out to sinks
// (the structured log, an MQTT broker) without slowing down key dispatch.
package telemetry

import (
	"fmt"
	"time"
)

// Kind identifies what an Event reports.
type Kind string

const (
	KindSpeed   Kind = "speed"
	KindEcho    Kind = "echo"
	KindKey     Kind = "key"
	KindStatus  Kind = "status"
	KindState   Kind = "state"
	KindFault   Kind = "fault"
	KindWarning Kind = "warning"
)

// Event is one observation. Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`

	WPM     int    `json:"wpm,omitempty"`
	Char    string `json:"char,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Contact string `json:"contact,omitempty"`
	Edge    string `json:"edge,omitempty"`
	State   string `json:"state,omitempty"`
	Status  string `json:"status,omitempty"`
	Err     string `json:"error,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case KindSpeed:
		return fmt.Sprintf("speed %d wpm", e.WPM)
	case KindEcho:
		return fmt.Sprintf("echo %q %s", e.Char, e.Pattern)
	case KindKey:
		return fmt.Sprintf("key %s(%s)", e.Edge, e.Contact)
	case KindStatus:
		return "status " + e.Status
	case KindState:
		return "state " + e.State
	case KindFault, KindWarning:
		return string(e.Kind) + " " + e.Err
	default:
		return string(e.Kind)
	}
}

// Speed builds a speed event.
func Speed(wpm int) Event {
	return Event{Kind: KindSpeed, Time: time.Now(), WPM: wpm}
}

// Echo builds an echo event for a character the keyer sent back.
func Echo(char, pattern string) Event {
	return Event{Kind: KindEcho, Time: time.Now(), Char: char, Pattern: pattern}
}

// Key builds a key edge event.
func Key(contact, edge string, at time.Time) Event {
	return Event{Kind: KindKey, Time: at, Contact: contact, Edge: edge}
}

// Status builds a status byte event.
func Status(status string) Event {
	return Event{Kind: KindStatus, Time: time.Now(), Status: status}
}

// State builds a session state change event.
func State(state string) Event {
	return Event{Kind: KindState, Time: time.Now(), State: state}
}

// Fault builds an event for an error that ended a session.
func Fault(err error) Event {
	return Event{Kind: KindFault, Time: time.Now(), Err: errString(err)}
}

// Warning builds an event for a recoverable error.
func Warning(err error) Event {
	return Event{Kind: KindWarning, Time: time.Now(), Err: errString(err)}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
