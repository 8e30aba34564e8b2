// internal/keyer/dispatcher.go
package keyer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ColonelBlimp/wklink/internal/logger"
)

// Key is a logical key on the remote keying target.
type Key uint8

const (
	// Primary is driven by the dit contact
	Primary Key = iota
	// Secondary is driven by the dah contact
	Secondary
)

func (k Key) String() string {
	switch k {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// KeyFor maps a contact onto its logical key.
func KeyFor(c Contact) Key {
	if c == Dah {
		return Secondary
	}
	return Primary
}

// Injector presses and releases logical keys on the keying target.
type Injector interface {
	Press(key Key) error
	Release(key Key) error
}

// ErrInjectorRequired indicates a dispatcher was built without an injector
var ErrInjectorRequired = errors.New("key injector is required")

// Dispatcher forwards key events to an Injector and remembers which contacts it
// currently holds down, so that every held key can be released on shutdown.
//
// All methods are safe for concurrent use. A dispatcher serves one session:
// ForceReleaseAll disarms it for good, after which Press events are ignored.
type Dispatcher struct {
	mu       sync.Mutex
	injector Injector
	held     [2]bool
	armed    bool
	logger   logger.Logger
}

// NewDispatcher creates an armed dispatcher.
func NewDispatcher(injector Injector, log logger.Logger) (*Dispatcher, error) {
	if injector == nil {
		return nil, ErrInjectorRequired
	}
	if log == nil {
		log = logger.Default()
	}
	return &Dispatcher{injector: injector, armed: true, logger: log}, nil
}

// Dispatch applies one event. A Release for a contact that is not held and a
// Press for a contact that already is are both no-ops.
func (d *Dispatcher) Dispatch(ev KeyEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ev.Contact > Dah {
		return fmt.Errorf("dispatch %s: unknown contact", ev)
	}

	switch ev.Edge {
	case Press:
		if !d.armed {
			d.logger.Debug("press ignored, dispatcher disarmed", "contact", ev.Contact)
			return nil
		}
		if d.held[ev.Contact] {
			return nil
		}
		if err := d.injector.Press(KeyFor(ev.Contact)); err != nil {
			d.logger.Warn("key press failed", "contact", ev.Contact, "error", err)
			return fmt.Errorf("press %s: %w", ev.Contact, err)
		}
		d.held[ev.Contact] = true
	case Release:
		return d.release(ev.Contact)
	default:
		return fmt.Errorf("dispatch %s: unknown edge", ev)
	}
	return nil
}

// release must be called with d.mu held. The held flag is cleared even when the
// injector fails, so a release is attempted at most once per press.
func (d *Dispatcher) release(c Contact) error {
	if !d.held[c] {
		return nil
	}
	d.held[c] = false
	if err := d.injector.Release(KeyFor(c)); err != nil {
		d.logger.Warn("key release failed", "contact", c, "error", err)
		return fmt.Errorf("release %s: %w", c, err)
	}
	return nil
}

// ForceReleaseAll releases every held contact exactly once and disarms the
// dispatcher. Further calls are no-ops.
func (d *Dispatcher) ForceReleaseAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.armed = false
	var errs []error
	for _, c := range []Contact{Dit, Dah} {
		if !d.held[c] {
			continue
		}
		d.logger.Debug("force release", "contact", c)
		if err := d.release(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Held reports whether the contact's key is currently held down.
func (d *Dispatcher) Held(c Contact) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c > Dah {
		return false
	}
	return d.held[c]
}
