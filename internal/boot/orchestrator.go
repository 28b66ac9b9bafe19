package boot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relaychat/appcore/internal/flow"
	"github.com/relaychat/appcore/internal/platform"
	"github.com/relaychat/appcore/internal/retry"
	"github.com/relaychat/appcore/pkg/types"
	"github.com/sirupsen/logrus"
)

// CredentialStore initializes the platform secure store. May prompt the user
// on consent-requiring platforms; the orchestrator only invokes it once
// consent has been granted there.
type CredentialStore interface {
	Initialize(ctx context.Context) error
}

// AuthService restores the locally cached auth session. An absent session is
// a successful empty-session result, not an error.
type AuthService interface {
	LoadSession(ctx context.Context) (types.Session, error)
}

// UserDataService loads the signed-in user's data for the restored session.
type UserDataService interface {
	LoadUserData(ctx context.Context, session types.Session) (types.UserData, error)
}

// FlagStore is the persisted completion-flag record.
type FlagStore interface {
	ReadFlags(ctx context.Context) (types.FlagSnapshot, error)
	SetFlag(ctx context.Context, name string, value bool) error
}

// Resetter backs the external "clear local data" recovery hook.
type Resetter interface {
	Wipe(ctx context.Context) error
}

// FlagSecureStorageReady is the flag written after successful credential
// store initialization. Mirrors the storage package constant without
// importing it, keeping this package free of the sqlite dependency.
const FlagSecureStorageReady = "secure_storage_ready"

// Config tunes the orchestrator's external calls.
type Config struct {
	// StepTimeout bounds each external service call. A timeout is
	// normalized to a recoverable failure event.
	StepTimeout time.Duration

	// Retry bounds in-place retries of transient failures before an
	// error event is emitted.
	Retry retry.Config
}

// DefaultConfig matches the interactive-boot budget: a step that takes
// longer than 30s has failed as far as the user is concerned.
func DefaultConfig() Config {
	return Config{
		StepTimeout: 30 * time.Second,
		Retry: retry.Config{
			MaxAttempts: 3,
			Delays:      []time.Duration{500 * time.Millisecond, 2 * time.Second},
		},
	}
}

// Orchestrator drives the bootstrap machine phase by phase. It is the only
// boot component that performs side effects; results always re-enter the
// machine as events through the serialized dispatch path.
type Orchestrator struct {
	machine  *Machine
	creds    CredentialStore
	auth     AuthService
	userData UserDataService
	flags    FlagStore
	resetter Resetter
	cfg      Config
	log      *logrus.Entry

	// detect is swappable in tests; production uses platform.Detect.
	detect func() types.PlatformInfo

	mu              sync.Mutex
	running         bool
	runCtx          context.Context
	inFlight        map[types.Phase]bool
	awaitingConsent bool
	continueCh      chan struct{}

	// bootFlags is the snapshot read during checking-storage, consulted
	// before state carries flags (state copies them at user-data load).
	bootFlags types.FlagSnapshot
}

// NewOrchestrator wires the orchestrator to its collaborators.
func NewOrchestrator(machine *Machine, creds CredentialStore, auth AuthService, userData UserDataService, flags FlagStore, resetter Resetter, cfg Config) *Orchestrator {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultConfig().StepTimeout
	}
	if cfg.Retry.RetryIf == nil {
		cfg.Retry.RetryIf = Recoverable
	}
	return &Orchestrator{
		machine:    machine,
		creds:      creds,
		auth:       auth,
		userData:   userData,
		flags:      flags,
		resetter:   resetter,
		cfg:        cfg,
		log:        logrus.WithField("component", "orchestrator"),
		detect:     platform.Detect,
		inFlight:   make(map[types.Phase]bool),
		continueCh: make(chan struct{}, 1),
	}
}

// Run drives the machine until it reaches a terminal phase (onboarding,
// dashboard, or error) or ctx is cancelled. Only one Run may be active at a
// time; Retry and Reset resume the loop after a terminal error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("bootstrap already running")
	}
	o.running = true
	o.runCtx = ctx
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	return o.loop(ctx)
}

func (o *Orchestrator) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		st := o.machine.Current()
		switch st.Phase {
		case types.PhaseUninitialized:
			o.machine.Dispatch(PlatformDetected(o.detect()))

		case types.PhaseCheckingStorage:
			o.checkStorage(ctx)

		case types.PhaseInitializingDB:
			if err := o.initializeDB(ctx, st); err != nil {
				// Consent wait aborted by shutdown.
				return err
			}

		case types.PhaseLoadingAuth:
			o.loadAuth(ctx)

		case types.PhaseLoadingUserData:
			o.loadUserData(ctx, st.Session)

		default:
			if st.Phase.Terminal() {
				o.log.WithField("phase", st.Phase).Info("Bootstrap finished")
				return nil
			}
			return fmt.Errorf("unexpected bootstrap phase %q", st.Phase)
		}
	}
}

// beginPhase is the idempotency guard: no two concurrent calls to the same
// phase's external service.
func (o *Orchestrator) beginPhase(phase types.Phase) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[phase] {
		return false
	}
	o.inFlight[phase] = true
	return true
}

func (o *Orchestrator) endPhase(phase types.Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, phase)
}

func (o *Orchestrator) checkStorage(ctx context.Context) {
	if !o.beginPhase(types.PhaseCheckingStorage) {
		return
	}
	defer o.endPhase(types.PhaseCheckingStorage)

	var snapshot types.FlagSnapshot
	err := o.callWithRetry(ctx, "flag store read", func(ctx context.Context) error {
		var readErr error
		snapshot, readErr = o.flags.ReadFlags(ctx)
		return readErr
	})
	if err != nil {
		o.machine.Dispatch(Fatal(err))
		return
	}

	o.mu.Lock()
	o.bootFlags = snapshot
	o.mu.Unlock()

	o.machine.Dispatch(StorageChecked())
}

func (o *Orchestrator) initializeDB(ctx context.Context, st State) error {
	if !o.beginPhase(types.PhaseInitializingDB) {
		return nil
	}
	defer o.endPhase(types.PhaseInitializingDB)

	o.mu.Lock()
	secureReady := o.bootFlags.SecureStorageReady
	o.mu.Unlock()

	// Consent-requiring platforms park here until the presentation layer
	// forwards the user's "continue". Returning users whose secure
	// storage is already marked ready boot straight through.
	if platform.RequiresExplicitConsent(st.Platform) && !secureReady {
		o.mu.Lock()
		o.awaitingConsent = true
		o.mu.Unlock()

		o.log.Info("Awaiting secure-storage consent")
		select {
		case <-o.continueCh:
			o.mu.Lock()
			o.awaitingConsent = false
			o.mu.Unlock()
		case <-ctx.Done():
			o.mu.Lock()
			o.awaitingConsent = false
			o.mu.Unlock()
			return ctx.Err()
		}
	}

	o.machine.Dispatch(DBInitStarted())

	err := o.callWithRetry(ctx, "credential store init", o.creds.Initialize)
	if err != nil {
		o.machine.Dispatch(DBInitComplete(err))
		return nil
	}

	if err := o.flags.SetFlag(ctx, FlagSecureStorageReady, true); err != nil {
		o.log.WithError(err).Warn("Failed to persist secure-storage flag")
	} else {
		o.mu.Lock()
		o.bootFlags.SecureStorageReady = true
		o.mu.Unlock()
	}

	o.machine.Dispatch(DBInitComplete(nil))
	return nil
}

func (o *Orchestrator) loadAuth(ctx context.Context) {
	if !o.beginPhase(types.PhaseLoadingAuth) {
		return
	}
	defer o.endPhase(types.PhaseLoadingAuth)

	var session types.Session
	err := o.callWithRetry(ctx, "auth restore", func(ctx context.Context) error {
		var loadErr error
		session, loadErr = o.auth.LoadSession(ctx)
		return loadErr
	})
	if err != nil {
		o.machine.Dispatch(Fatal(err))
		return
	}

	o.machine.Dispatch(AuthLoaded(session))
}

func (o *Orchestrator) loadUserData(ctx context.Context, session types.Session) {
	if !o.beginPhase(types.PhaseLoadingUserData) {
		return
	}
	defer o.endPhase(types.PhaseLoadingUserData)

	err := o.callWithRetry(ctx, "user data load", func(ctx context.Context) error {
		_, loadErr := o.userData.LoadUserData(ctx, session)
		return loadErr
	})
	if err != nil {
		o.machine.Dispatch(Fatal(err))
		return
	}

	// Fresh snapshot: completion events may have written flags since the
	// checking-storage read.
	snapshot, err := o.flags.ReadFlags(ctx)
	if err != nil {
		o.machine.Dispatch(Fatal(err))
		return
	}

	o.machine.Dispatch(UserDataLoaded(snapshot))
}

// callWithRetry bounds fn with the step timeout and retries transient
// failures in place. The error returned after exhaustion is what gets
// classified into the failure event.
func (o *Orchestrator) callWithRetry(ctx context.Context, name string, fn func(context.Context) error) error {
	return retry.WithRetry(ctx, o.cfg.Retry, func() error {
		return o.callWithTimeout(ctx, name, fn)
	})
}

func (o *Orchestrator) callWithTimeout(ctx context.Context, name string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- fn(cctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s failed: %w", name, err)
		}
		return nil
	case <-cctx.Done():
		// A timeout is treated identically to an explicit failure
		// callback, and classifies recoverable.
		return fmt.Errorf("%s: %w", name, cctx.Err())
	}
}

// Continue forwards the user's consent acknowledgement. Fails unless the
// orchestrator is parked on the consent step.
func (o *Orchestrator) Continue() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.awaitingConsent {
		return ErrNotAwaitingConsent
	}

	select {
	case o.continueCh <- struct{}{}:
	default:
	}
	return nil
}

// AwaitingConsent reports whether boot is parked on the consent step.
func (o *Orchestrator) AwaitingConsent() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.awaitingConsent
}

// Retry re-enters the failed phase after a recoverable error and resumes
// the boot loop on the original Run context.
func (o *Orchestrator) Retry() error {
	st := o.machine.Current()
	if st.Phase != types.PhaseError || st.Err == nil || !st.Err.Recoverable {
		return ErrNotRetryable
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("bootstrap already running")
	}
	ctx := o.runCtx
	o.mu.Unlock()
	if ctx == nil {
		return errors.New("bootstrap was never started")
	}

	o.machine.Dispatch(RetryRequested())
	go func() {
		if err := o.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.log.WithError(err).Warn("Bootstrap retry aborted")
		}
	}()
	return nil
}

// Reset is the external recovery hook: wipe local data and restart the boot
// sequence from scratch. Valid only from the error phase.
func (o *Orchestrator) Reset(ctx context.Context) error {
	st := o.machine.Current()
	if st.Phase != types.PhaseError {
		return ErrNotInErrorPhase
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("bootstrap already running")
	}
	runCtx := o.runCtx
	o.mu.Unlock()
	if runCtx == nil {
		return errors.New("bootstrap was never started")
	}

	if err := o.resetter.Wipe(ctx); err != nil {
		return fmt.Errorf("failed to wipe local data: %w", err)
	}

	o.mu.Lock()
	o.bootFlags = types.FlagSnapshot{}
	o.mu.Unlock()

	o.machine.Dispatch(Restart())
	go func() {
		if err := o.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			o.log.WithError(err).Warn("Bootstrap restart aborted")
		}
	}()
	return nil
}

// Status builds the bootstrap read model for the presentation layer. The
// derived current step is populated only while onboarding, always from the
// canonical order, never the display flow.
func (o *Orchestrator) Status() types.BootstrapStatus {
	st := o.machine.Current()
	status := types.BootstrapStatus{
		Phase:    st.Phase,
		Platform: st.Platform,
		Flags:    st.Flags,
		Error:    st.Err,
	}
	if st.Phase == types.PhaseOnboarding {
		status.CurrentStep = flow.DeriveCurrentStep(flow.CanonicalStepOrder, st.Flags)
	}
	return status
}
