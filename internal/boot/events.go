package boot

import "github.com/relaychat/appcore/pkg/types"

// EventKind names a state-machine event.
type EventKind string

const (
	EventPlatformDetected EventKind = "platform-detected"
	EventStorageChecked   EventKind = "storage-checked"
	EventDBInitStarted    EventKind = "db-init-started"
	EventDBInitComplete   EventKind = "db-init-complete"
	EventAuthLoaded       EventKind = "auth-loaded"
	EventUserDataLoaded   EventKind = "user-data-loaded"
	EventFatal            EventKind = "fatal"
	EventRetryRequested   EventKind = "retry-requested"
	EventRestart          EventKind = "restart"
)

// Event is a single input to the bootstrap reducer. Only the fields
// relevant to the kind are populated.
type Event struct {
	Kind     EventKind
	Platform types.PlatformInfo
	Session  types.Session
	Flags    types.FlagSnapshot
	Err      *types.BootError
}

// PlatformDetected carries the host platform into state.
func PlatformDetected(info types.PlatformInfo) Event {
	return Event{Kind: EventPlatformDetected, Platform: info}
}

// StorageChecked reports the flag store is reachable.
func StorageChecked() Event {
	return Event{Kind: EventStorageChecked}
}

// DBInitStarted marks credential-store initialization as underway.
func DBInitStarted() Event {
	return Event{Kind: EventDBInitStarted}
}

// DBInitComplete reports the outcome of credential-store initialization.
// A nil err is success; a non-nil err is classified and lands in the error
// phase regardless of the current phase.
func DBInitComplete(err error) Event {
	return Event{Kind: EventDBInitComplete, Err: Classify(err)}
}

// AuthLoaded carries the restored session (possibly empty on first run).
func AuthLoaded(session types.Session) Event {
	return Event{Kind: EventAuthLoaded, Session: session}
}

// UserDataLoaded carries the flag snapshot copied into state; the reducer
// derives the terminal phase (onboarding or dashboard) from it.
func UserDataLoaded(flags types.FlagSnapshot) Event {
	return Event{Kind: EventUserDataLoaded, Flags: flags}
}

// Fatal reports a phase failure, classified for recoverability.
func Fatal(err error) Event {
	return Event{Kind: EventFatal, Err: Classify(err)}
}

// RetryRequested re-enters the failed phase; valid only in a recoverable
// error state.
func RetryRequested() Event {
	return Event{Kind: EventRetryRequested}
}

// Restart returns the machine to uninitialized; the explicit escape used by
// the reset hook.
func Restart() Event {
	return Event{Kind: EventRestart}
}
