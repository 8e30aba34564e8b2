// internal/recovery/recovery.go
package recovery

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/ColonelBlimp/wklink/internal/logger"
)

// ErrPanic wraps a value recovered by Recover.
var ErrPanic = errors.New("recovered panic")

// HandlePanic should be deferred at the top of main().
// It logs panic details and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		_, _ = fmt.Fprintf(os.Stderr, "FATAL: %v\n\nStack trace:\n%s\n", r, debug.Stack())
		os.Exit(1)
	}
}

// HandlePanicFunc logs panic details, calls cleanup and exits with code 1.
// The bridge defers it with a cleanup that releases any held key.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		_, _ = fmt.Fprintf(os.Stderr, "FATAL: %v\n\nStack trace:\n%s\n", r, debug.Stack())
		if cleanup != nil {
			cleanup()
		}
		os.Exit(1)
	}
}

// Recover turns a panic into an error instead of exiting. It must be deferred
// directly:
//
//	defer recovery.Recover(&err, func() { _ = d.ForceReleaseAll() })
//
// cleanup runs before *errp is set.
func Recover(errp *error, cleanup func()) {
	r := recover()
	if r == nil {
		return
	}
	logger.Error("panic recovered", "panic", r, "stack", string(debug.Stack()))
	if cleanup != nil {
		cleanup()
	}
	if errp != nil {
		*errp = fmt.Errorf("%w: %v", ErrPanic, r)
	}
}
