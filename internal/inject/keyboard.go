// internal/inject/keyboard.go
package inject

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"

	"github.com/ColonelBlimp/wklink/internal/keyer"
	"github.com/ColonelBlimp/wklink/internal/logger"
)

// uinputSettle is how long a fresh uinput device needs before the desktop
// accepts its events.
const uinputSettle = 2 * time.Second

// Keyboard injects the primary key as left Ctrl and the secondary key as right
// Ctrl, the bindings VBand listens for.
type Keyboard struct {
	mu        sync.Mutex
	primary   keybd_event.KeyBonding
	secondary keybd_event.KeyBonding
	logger    logger.Logger
}

var _ keyer.Injector = (*Keyboard)(nil)

// NewKeyboard creates the virtual keyboard. On Linux this needs write access to
// /dev/uinput and blocks for a short settle period.
func NewKeyboard(log logger.Logger) (*Keyboard, error) {
	if log == nil {
		log = logger.Default()
	}

	primary, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard: %w", err)
	}
	primary.HasCTRL(true)

	secondary, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard: %w", err)
	}
	secondary.HasCTRLR(true)

	if runtime.GOOS == "linux" {
		log.Debug("waiting for uinput device", "settle", uinputSettle)
		time.Sleep(uinputSettle)
	}

	return &Keyboard{
		primary:   primary,
		secondary: secondary,
		logger:    log.With("injector", NameKeyboard),
	}, nil
}

func (k *Keyboard) Press(key keyer.Key) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	kb, err := k.binding(key)
	if err != nil {
		return err
	}
	return kb.Press()
}

func (k *Keyboard) Release(key keyer.Key) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	kb, err := k.binding(key)
	if err != nil {
		return err
	}
	return kb.Release()
}

func (k *Keyboard) binding(key keyer.Key) (*keybd_event.KeyBonding, error) {
	switch key {
	case keyer.Primary:
		return &k.primary, nil
	case keyer.Secondary:
		return &k.secondary, nil
	default:
		return nil, fmt.Errorf("no binding for key %s", key)
	}
}
