// Package boot owns the bootstrap state machine and the loading
// orchestrator that drives it. The machine is a pure, total reducer over
// phase-transition events; the orchestrator is the only component permitted
// to perform side effects during boot, and every effect result re-enters the
// machine through the single serialized dispatch path.
package boot

import (
	"sync"

	"github.com/relaychat/appcore/internal/flow"
	"github.com/relaychat/appcore/pkg/types"
	"github.com/sirupsen/logrus"
)

// State is the bootstrap state, owned exclusively by the machine. Copies are
// handed out; nothing outside the reducer mutates it.
type State struct {
	Phase    types.Phase
	Platform types.PlatformInfo
	Session  types.Session
	Flags    types.FlagSnapshot
	Err      *types.BootError

	// DBInitStarted records that credential-store init was kicked off in
	// the current initializing-db visit; the orchestrator's idempotency
	// guard reads it.
	DBInitStarted bool

	// DBInitialized is set only by a successful DBInitComplete. Guards
	// the ordering invariant: loading-auth is unreachable without it.
	DBInitialized bool

	// FailedPhase is the phase that was active when the machine entered
	// the error phase; RetryRequested returns there.
	FailedPhase types.Phase
}

// NewState returns the initial bootstrap state.
func NewState() State {
	return State{Phase: types.PhaseUninitialized}
}

// Reduce applies one event to the state. Pure and total: every event has a
// defined transition from every phase, and unhandled combinations return the
// state unchanged. Phases only move forward, except into the error phase
// (from anywhere), back out of a recoverable error via RetryRequested, or to
// uninitialized via Restart.
func Reduce(s State, e Event) State {
	switch e.Kind {
	case EventFatal:
		return toError(s, e.Err)

	case EventDBInitComplete:
		// A failed init is fatal from any phase, by design: a late
		// failure callback must never be swallowed.
		if e.Err != nil {
			return toError(s, e.Err)
		}
		if s.Phase != types.PhaseInitializingDB {
			return s
		}
		s.DBInitialized = true
		s.Phase = types.PhaseLoadingAuth
		return s

	case EventPlatformDetected:
		if s.Phase != types.PhaseUninitialized {
			return s
		}
		s.Platform = e.Platform
		s.Phase = types.PhaseCheckingStorage
		return s

	case EventStorageChecked:
		if s.Phase != types.PhaseCheckingStorage {
			return s
		}
		s.Phase = types.PhaseInitializingDB
		return s

	case EventDBInitStarted:
		if s.Phase != types.PhaseInitializingDB {
			return s
		}
		s.DBInitStarted = true
		return s

	case EventAuthLoaded:
		if s.Phase != types.PhaseLoadingAuth || !s.DBInitialized {
			return s
		}
		s.Session = e.Session
		s.Phase = types.PhaseLoadingUserData
		return s

	case EventUserDataLoaded:
		if s.Phase != types.PhaseLoadingUserData {
			return s
		}
		s.Flags = e.Flags
		if flow.DeriveCurrentStep(flow.CanonicalStepOrder, s.Flags) == types.StepReady {
			s.Phase = types.PhaseDashboard
		} else {
			s.Phase = types.PhaseOnboarding
		}
		return s

	case EventRetryRequested:
		if s.Phase != types.PhaseError || s.Err == nil || !s.Err.Recoverable || s.FailedPhase == "" {
			return s
		}
		s.Phase = s.FailedPhase
		s.FailedPhase = ""
		s.Err = nil
		if s.Phase == types.PhaseInitializingDB {
			s.DBInitStarted = false
		}
		return s

	case EventRestart:
		return NewState()
	}

	return s
}

func toError(s State, bootErr *types.BootError) State {
	if s.Phase != types.PhaseError {
		s.FailedPhase = s.Phase
	}
	s.Phase = types.PhaseError
	s.Err = bootErr
	return s
}

// Observer is notified after each dispatch, inside the dispatch lock, so
// observers see transitions in order.
type Observer func(prev, next State, e Event)

// Machine serializes event dispatch over the bootstrap state. No two
// dispatches are ever in flight concurrently.
type Machine struct {
	mu        sync.Mutex
	state     State
	observers []Observer
	log       *logrus.Entry
}

// NewMachine creates a machine in the uninitialized phase.
func NewMachine(observers ...Observer) *Machine {
	return &Machine{
		state:     NewState(),
		observers: observers,
		log:       logrus.WithField("component", "bootstrap"),
	}
}

// Dispatch applies the event and returns the resulting state.
func (m *Machine) Dispatch(e Event) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	next := Reduce(prev, e)
	m.state = next

	if prev.Phase != next.Phase {
		entry := m.log.WithFields(logrus.Fields{
			"event": e.Kind,
			"from":  prev.Phase,
			"to":    next.Phase,
		})
		if next.Err != nil {
			entry.WithFields(logrus.Fields{
				"error":       next.Err.Message,
				"recoverable": next.Err.Recoverable,
			}).Warn("Bootstrap entered error phase")
		} else {
			entry.Info("Bootstrap phase transition")
		}
	}

	for _, obs := range m.observers {
		obs(prev, next, e)
	}

	return next
}

// Current returns a copy of the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
