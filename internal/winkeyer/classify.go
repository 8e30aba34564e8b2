// internal/winkeyer/classify.go
// Package winkeyer implements the host side of the K1EL WinKeyer serial protocol:
// classification of unsolicited device bytes, speed pot decoding and the admin and
// register commands the bridge writes.
package winkeyer

import "fmt"

// Kind discriminates the three classes of byte a WinKeyer sends to the host.
type Kind uint8

const (
	// KindEcho is an ASCII character the keyer decoded from the paddles (paddle echo)
	KindEcho Kind = iota
	// KindPot is a speed pot reading
	KindPot
	// KindStatus is a control status byte
	KindStatus
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindEcho:
		return "echo"
	case KindPot:
		return "pot"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Class bits occupy the two high bits of every byte from the device.
const (
	classMask   = 0xC0
	classStatus = 0xC0
	classPot    = 0x80

	potMask    = 0x1F
	statusMask = 0x3F
)

// Status bits, valid only for status bytes (0xC0-0xFF).
const (
	StatusDah       = 1 << 0 // dah contact closed
	StatusDit       = 1 << 1 // dit contact closed
	StatusPTT       = 1 << 2 // PTT asserted
	StatusTune      = 1 << 3 // tune mode active
	StatusBreakIn   = 1 << 4 // break-in, any contact closed
	StatusPotActive = 1 << 5 // pot is being turned
)

// Status is a decoded control status byte.
type Status struct {
	DitClosed  bool
	DahClosed  bool
	BreakIn    bool
	PTT        bool
	TuneActive bool
	PotActive  bool
}

// String renders the set flags, e.g. "dit+dah+breakin".
func (s Status) String() string {
	out := ""
	add := func(set bool, name string) {
		if !set {
			return
		}
		if out != "" {
			out += "+"
		}
		out += name
	}
	add(s.DitClosed, "dit")
	add(s.DahClosed, "dah")
	add(s.BreakIn, "breakin")
	add(s.PTT, "ptt")
	add(s.TuneActive, "tune")
	add(s.PotActive, "pot")
	if out == "" {
		return "idle"
	}
	return out
}

// Byte is one classified byte. Exactly one of Status, Pot or Echo is meaningful,
// selected by Kind.
type Byte struct {
	Kind Kind
	Raw  byte
}

// Classify sorts a raw byte into its class. It is total over all 256 values.
func Classify(b byte) Byte {
	switch b & classMask {
	case classStatus:
		return Byte{Kind: KindStatus, Raw: b}
	case classPot:
		return Byte{Kind: KindPot, Raw: b}
	default:
		return Byte{Kind: KindEcho, Raw: b}
	}
}

// Status decodes the low six bits of a status byte. The result is the zero Status
// for other kinds.
func (c Byte) Status() Status {
	if c.Kind != KindStatus {
		return Status{}
	}
	bits := c.Raw & statusMask
	return Status{
		DitClosed:  bits&StatusDit != 0,
		DahClosed:  bits&StatusDah != 0,
		BreakIn:    bits&StatusBreakIn != 0,
		PTT:        bits&StatusPTT != 0,
		TuneActive: bits&StatusTune != 0,
		PotActive:  bits&StatusPotActive != 0,
	}
}

// Pot returns the raw 5-bit speed pot value (0-31), or 0 for other kinds.
func (c Byte) Pot() int {
	if c.Kind != KindPot {
		return 0
	}
	return int(c.Raw & potMask)
}

// Echo returns the echoed ASCII code, or 0 for other kinds.
func (c Byte) Echo() byte {
	if c.Kind != KindEcho {
		return 0
	}
	return c.Raw
}

func (c Byte) String() string {
	switch c.Kind {
	case KindStatus:
		return fmt.Sprintf("status(0x%02X %s)", c.Raw, c.Status())
	case KindPot:
		return fmt.Sprintf("pot(%d)", c.Pot())
	default:
		return fmt.Sprintf("echo(%q)", rune(c.Raw))
	}
}
