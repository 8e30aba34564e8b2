// internal/inject/inject.go
// Package inject provides key injectors for the remote keying target.
package inject

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ColonelBlimp/wklink/internal/keyer"
	"github.com/ColonelBlimp/wklink/internal/logger"
)

// Injector names accepted by New.
const (
	NameKeyboard = "keyboard"
	NameLog      = "log"
)

// ErrUnknownInjector indicates an unsupported injector name
var ErrUnknownInjector = errors.New("unknown key injector")

// New builds the injector selected by name.
func New(name string, log logger.Logger) (keyer.Injector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameKeyboard:
		return NewKeyboard(log)
	case NameLog:
		return NewLog(log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInjector, name)
	}
}

// Log is a dry-run injector that only logs what it would do.
type Log struct {
	logger logger.Logger
}

var _ keyer.Injector = (*Log)(nil)

// NewLog creates a logging injector.
func NewLog(log logger.Logger) *Log {
	if log == nil {
		log = logger.Default()
	}
	return &Log{logger: log.With("injector", NameLog)}
}

func (l *Log) Press(key keyer.Key) error {
	l.logger.Info("key down", "key", key)
	return nil
}

func (l *Log) Release(key keyer.Key) error {
	l.logger.Info("key up", "key", key)
	return nil
}

// Action is one call seen by a Recorder.
type Action struct {
	Key     keyer.Key
	Pressed bool
}

func (a Action) String() string {
	if a.Pressed {
		return "press(" + a.Key.String() + ")"
	}
	return "release(" + a.Key.String() + ")"
}

// Recorder remembers every call and the resulting key state. An optional hook
// runs after each call, outside the lock.
type Recorder struct {
	mu      sync.Mutex
	actions []Action
	down    map[keyer.Key]bool
	hook    func(Action)
}

var _ keyer.Injector = (*Recorder)(nil)

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{down: make(map[keyer.Key]bool)}
}

// OnAction installs a hook called after every press or release.
func (r *Recorder) OnAction(hook func(Action)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
}

func (r *Recorder) Press(key keyer.Key) error {
	return r.apply(Action{Key: key, Pressed: true})
}

func (r *Recorder) Release(key keyer.Key) error {
	return r.apply(Action{Key: key, Pressed: false})
}

func (r *Recorder) apply(a Action) error {
	r.mu.Lock()
	r.actions = append(r.actions, a)
	r.down[a.Key] = a.Pressed
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(a)
	}
	return nil
}

// Actions returns a copy of the recorded calls.
func (r *Recorder) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// Count returns how many calls matched key and direction.
func (r *Recorder) Count(key keyer.Key, pressed bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.actions {
		if a.Key == key && a.Pressed == pressed {
			n++
		}
	}
	return n
}

// Down reports whether key is currently pressed.
func (r *Recorder) Down(key keyer.Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.down[key]
}

// AnyDown reports whether any key is currently pressed.
func (r *Recorder) AnyDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.down {
		if d {
			return true
		}
	}
	return false
}
