package boot

import (
	"context"
	"errors"
	"net"

	"github.com/relaychat/appcore/pkg/types"
)

// Sentinel errors for bootstrap failure classification and orchestrator
// preconditions.
var (
	// ErrTransient tags an error as transient. Wrap with Transient() to
	// mark a failure recoverable regardless of its concrete type.
	ErrTransient = errors.New("transient error")

	// ErrStorageCorrupt indicates the local database or credential store
	// is unreadable. Never recoverable; only the reset hook escapes it.
	ErrStorageCorrupt = errors.New("local storage corrupt")

	// ErrNotAwaitingConsent is returned by Continue when the orchestrator
	// is not parked on the consent step.
	ErrNotAwaitingConsent = errors.New("not awaiting consent")

	// ErrNotRetryable is returned by Retry outside a recoverable error
	// state.
	ErrNotRetryable = errors.New("bootstrap error is not retryable")

	// ErrNotInErrorPhase is returned by Reset outside the error phase.
	ErrNotInErrorPhase = errors.New("reset is only available from the error phase")
)

// Transient wraps err so classification treats it as recoverable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrTransient, err)
}

// Recoverable reports whether err is a transient failure worth retrying.
// Recoverable is the privileged class (it enables retry), so it is granted
// only to positively identified transient failures: timeouts, network
// errors, and explicitly tagged ones. Everything else, storage corruption
// included, is fatal.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStorageCorrupt) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// Classify normalizes err into the BootError carried by state-machine
// events. The orchestrator never lets a raw error cross the dispatch
// boundary.
func Classify(err error) *types.BootError {
	if err == nil {
		return nil
	}
	return &types.BootError{
		Message:     err.Error(),
		Recoverable: Recoverable(err),
	}
}
