package boot

import (
	"context"
	"errors"
	"testing"

	"github.com/relaychat/appcore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func macPlatform() types.PlatformInfo {
	return types.PlatformInfo{OS: "darwin", IsMac: true}
}

// happyPath drives a fresh state to loading-user-data.
func happyPath(t *testing.T) State {
	t.Helper()
	s := NewState()
	s = Reduce(s, PlatformDetected(macPlatform()))
	s = Reduce(s, StorageChecked())
	s = Reduce(s, DBInitStarted())
	s = Reduce(s, DBInitComplete(nil))
	s = Reduce(s, AuthLoaded(types.Session{ID: "sess"}))
	require.Equal(t, types.PhaseLoadingUserData, s.Phase)
	return s
}

func TestReduce_HappyPathToOnboarding(t *testing.T) {
	s := happyPath(t)
	s = Reduce(s, UserDataLoaded(types.FlagSnapshot{}))
	assert.Equal(t, types.PhaseOnboarding, s.Phase)
}

func TestReduce_HappyPathToDashboard(t *testing.T) {
	s := happyPath(t)
	s = Reduce(s, UserDataLoaded(types.FlagSnapshot{
		HasPermissions:     true,
		HasEmail:           true,
		HasPhoneType:       true,
		SecureStorageReady: true,
	}))
	assert.Equal(t, types.PhaseDashboard, s.Phase)
	assert.True(t, s.Flags.HasEmail)
}

func TestReduce_PlatformCapturedOnce(t *testing.T) {
	s := Reduce(NewState(), PlatformDetected(macPlatform()))
	assert.Equal(t, types.PhaseCheckingStorage, s.Phase)
	assert.True(t, s.Platform.IsMac)

	// A second detection is a no-op; platform is immutable after capture.
	s2 := Reduce(s, PlatformDetected(types.PlatformInfo{OS: "windows", IsWindows: true}))
	assert.Equal(t, s, s2)
}

func TestReduce_DBInitFailureIsFatalFromAnyPhase(t *testing.T) {
	states := []State{
		NewState(),
		Reduce(NewState(), PlatformDetected(macPlatform())),
		happyPath(t),
	}

	for _, s := range states {
		from := s.Phase
		next := Reduce(s, DBInitComplete(errors.New("disk fell off")))
		assert.Equal(t, types.PhaseError, next.Phase, "from %q", from)
		require.NotNil(t, next.Err)
		assert.False(t, next.Err.Recoverable)
		assert.Equal(t, from, next.FailedPhase)
	}
}

func TestReduce_FatalFromAnyPhase(t *testing.T) {
	s := NewState()
	events := []Event{
		PlatformDetected(macPlatform()),
		StorageChecked(),
		DBInitStarted(),
		DBInitComplete(nil),
	}
	for _, e := range events {
		s = Reduce(s, e)
		errState := Reduce(s, Fatal(errors.New("boom")))
		assert.Equal(t, types.PhaseError, errState.Phase)
		assert.Equal(t, s.Phase, errState.FailedPhase)
	}
}

func TestReduce_FatalClassifiesTransientAsRecoverable(t *testing.T) {
	s := Reduce(NewState(), Fatal(Transient(errors.New("rate limited"))))
	require.NotNil(t, s.Err)
	assert.True(t, s.Err.Recoverable)

	s = Reduce(NewState(), Fatal(ErrStorageCorrupt))
	require.NotNil(t, s.Err)
	assert.False(t, s.Err.Recoverable)
}

// Ordering property: loading-auth is unreachable without a prior successful
// DBInitComplete, checked over exhaustive event sequences.
func TestReduce_AuthNeverBeforeDBInit(t *testing.T) {
	events := []Event{
		PlatformDetected(macPlatform()),
		StorageChecked(),
		DBInitStarted(),
		DBInitComplete(nil),
		AuthLoaded(types.Session{}),
		UserDataLoaded(types.FlagSnapshot{}),
		RetryRequested(),
		Restart(),
	}

	// Walk every sequence of three events from every reachable prefix of
	// the happy path; whenever the machine sits in loading-auth or later,
	// a successful db init must have been observed.
	var walk func(s State, depth int, sawInit bool)
	walk = func(s State, depth int, sawInit bool) {
		if s.Phase == types.PhaseLoadingAuth || s.Phase == types.PhaseLoadingUserData {
			assert.True(t, s.DBInitialized, "reached %q without db init", s.Phase)
			assert.True(t, sawInit, "reached %q without observing DBInitComplete(nil)", s.Phase)
		}
		if depth == 0 {
			return
		}
		for _, e := range events {
			next := Reduce(s, e)
			nextSaw := sawInit || (e.Kind == EventDBInitComplete && e.Err == nil && s.Phase == types.PhaseInitializingDB)
			if e.Kind == EventRestart {
				nextSaw = false
			}
			walk(next, depth-1, nextSaw)
		}
	}
	walk(NewState(), 6, false)
}

func TestReduce_NoPhaseSkipping(t *testing.T) {
	s := NewState()

	// Events for later phases are no-ops before their time.
	assert.Equal(t, s, Reduce(s, StorageChecked()))
	assert.Equal(t, s, Reduce(s, DBInitStarted()))
	assert.Equal(t, s, Reduce(s, AuthLoaded(types.Session{})))
	assert.Equal(t, s, Reduce(s, UserDataLoaded(types.FlagSnapshot{})))

	s = Reduce(s, PlatformDetected(macPlatform()))
	assert.Equal(t, s, Reduce(s, AuthLoaded(types.Session{})))
	assert.Equal(t, s, Reduce(s, UserDataLoaded(types.FlagSnapshot{})))
}

func TestReduce_RetryReentersFailedPhase(t *testing.T) {
	s := Reduce(NewState(), PlatformDetected(macPlatform()))
	s = Reduce(s, StorageChecked())
	require.Equal(t, types.PhaseInitializingDB, s.Phase)

	s = Reduce(s, DBInitStarted())
	s = Reduce(s, Fatal(Transient(errors.New("network flake"))))
	require.Equal(t, types.PhaseError, s.Phase)

	s = Reduce(s, RetryRequested())
	assert.Equal(t, types.PhaseInitializingDB, s.Phase)
	assert.Nil(t, s.Err)
	assert.False(t, s.DBInitStarted, "retry must allow a fresh init attempt")
}

func TestReduce_RetryRefusedForNonRecoverable(t *testing.T) {
	s := Reduce(NewState(), Fatal(ErrStorageCorrupt))
	require.Equal(t, types.PhaseError, s.Phase)

	next := Reduce(s, RetryRequested())
	assert.Equal(t, types.PhaseError, next.Phase)
	assert.NotNil(t, next.Err)
}

func TestReduce_RestartReturnsToUninitialized(t *testing.T) {
	s := happyPath(t)
	s = Reduce(s, Fatal(errors.New("boom")))
	s = Reduce(s, Restart())
	assert.Equal(t, NewState(), s)
}

func TestReduce_TerminalPhasesIgnoreBootEvents(t *testing.T) {
	s := happyPath(t)
	s = Reduce(s, UserDataLoaded(types.FlagSnapshot{}))
	require.Equal(t, types.PhaseOnboarding, s.Phase)

	for _, e := range []Event{
		PlatformDetected(macPlatform()),
		StorageChecked(),
		DBInitStarted(),
		AuthLoaded(types.Session{}),
		UserDataLoaded(types.FlagSnapshot{}),
		RetryRequested(),
	} {
		assert.Equal(t, s, Reduce(s, e), "event %q must be a no-op in onboarding", e.Kind)
	}
}

func TestMachine_DispatchNotifiesObserversInOrder(t *testing.T) {
	var phases []types.Phase
	m := NewMachine(func(prev, next State, e Event) {
		phases = append(phases, next.Phase)
	})

	m.Dispatch(PlatformDetected(macPlatform()))
	m.Dispatch(StorageChecked())
	m.Dispatch(DBInitStarted())
	m.Dispatch(DBInitComplete(nil))

	assert.Equal(t, []types.Phase{
		types.PhaseCheckingStorage,
		types.PhaseInitializingDB,
		types.PhaseInitializingDB,
		types.PhaseLoadingAuth,
	}, phases)
	assert.Equal(t, types.PhaseLoadingAuth, m.Current().Phase)
}

func TestRecoverable(t *testing.T) {
	assert.False(t, Recoverable(nil))
	assert.False(t, Recoverable(errors.New("unknown")))
	assert.False(t, Recoverable(ErrStorageCorrupt))
	assert.True(t, Recoverable(Transient(errors.New("429"))))
	assert.True(t, Recoverable(context.DeadlineExceeded))
}
