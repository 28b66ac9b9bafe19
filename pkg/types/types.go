// Package types defines the shared data model of the desktop core: bootstrap
// phases, onboarding steps, sync job records, and the JSON shapes exposed to
// the presentation shell.
package types

import "time"

// Phase is a discrete stage of the bootstrap sequence.
type Phase string

const (
	PhaseUninitialized   Phase = "uninitialized"
	PhaseCheckingStorage Phase = "checking-storage"
	PhaseInitializingDB  Phase = "initializing-db"
	PhaseLoadingAuth     Phase = "loading-auth"
	PhaseLoadingUserData Phase = "loading-user-data"
	PhaseOnboarding      Phase = "onboarding"
	PhaseDashboard       Phase = "dashboard"
	PhaseError           Phase = "error"
)

// Terminal reports whether the phase ends the boot sequence.
func (p Phase) Terminal() bool {
	return p == PhaseOnboarding || p == PhaseDashboard || p == PhaseError
}

// PlatformInfo describes the host platform, captured once at startup.
type PlatformInfo struct {
	OS        string `json:"os"`
	IsMac     bool   `json:"is_mac"`
	IsWindows bool   `json:"is_windows"`
}

// StepID identifies a single onboarding step.
type StepID string

const (
	StepPermissions   StepID = "permissions"
	StepPhoneType     StepID = "phone-type"
	StepEmailConnect  StepID = "email-connect"
	StepSecureStorage StepID = "secure-storage"

	// StepReady is the terminal marker returned by step derivation once
	// every onboarding step is complete.
	StepReady StepID = "ready"
)

// FlagSnapshot is an immutable copy of the persisted completion flags, taken
// when user data loads. The presentation layer reads this snapshot from
// bootstrap state, never the store directly.
type FlagSnapshot struct {
	HasPermissions     bool `json:"has_permissions"`
	HasEmail           bool `json:"has_email"`
	HasPhoneType       bool `json:"has_phone_type"`
	SecureStorageReady bool `json:"secure_storage_ready"`
}

// BootError is a normalized bootstrap failure. Recoverable errors permit a
// retry that re-enters the failed phase; non-recoverable ones require the
// external reset hook.
type BootError struct {
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// Session is the restored auth session. A zero Session is a valid "no local
// session yet" result (first run).
type Session struct {
	ID    string `json:"id"`
	Token string `json:"-"`
}

// UserData is the result of the user-data load phase.
type UserData struct {
	AccountID string       `json:"account_id"`
	Flags     FlagSnapshot `json:"flags"`
}

// JobType is the category of a background sync job.
type JobType string

const (
	JobContacts JobType = "contacts"
	JobMessages JobType = "messages"
	JobEmail    JobType = "email"
)

// JobTypes lists every known job type in display order.
func JobTypes() []JobType {
	return []JobType{JobContacts, JobMessages, JobEmail}
}

// ValidJobType reports whether s names a known job type.
func ValidJobType(s string) (JobType, bool) {
	for _, t := range JobTypes() {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// JobState is the lifecycle state of a sync job record.
type JobState string

const (
	JobIdle     JobState = "idle"
	JobQueued   JobState = "queued"
	JobRunning  JobState = "running"
	JobComplete JobState = "complete"
	JobError    JobState = "error"
)

// ProgressInfo is the current/total progress of a running job.
type ProgressInfo struct {
	Current int64 `json:"current"`
	Total   int64 `json:"total"`
}

// SyncJob is the read model of one job type's record. Exactly one record
// exists per type, which is what enforces single-flight.
type SyncJob struct {
	Type         JobType       `json:"type"`
	State        JobState      `json:"state"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Progress     *ProgressInfo `json:"progress,omitempty"`
}

// SyncSnapshot is the queue's exposed read model, derived on demand.
type SyncSnapshot struct {
	Jobs         map[JobType]SyncJob `json:"jobs"`
	IsAnyRunning bool                `json:"is_any_running"`
}

// BootstrapStatus is the bootstrap read model returned by the control API.
// CurrentStep is populated only while onboarding.
type BootstrapStatus struct {
	Phase       Phase        `json:"phase"`
	Platform    PlatformInfo `json:"platform"`
	Flags       FlagSnapshot `json:"flags"`
	CurrentStep StepID       `json:"current_step,omitempty"`
	Error       *BootError   `json:"error,omitempty"`
}

// ErrorResponse is the API error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// HealthResponse reports daemon liveness and the current boot phase.
type HealthResponse struct {
	Status    string    `json:"status"`
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

// SyncResetRequest is the body of POST /api/v1/sync/reset.
type SyncResetRequest struct {
	Force bool `json:"force"`
}

// ProgressRequest is the body of POST /api/v1/sync/:type/progress.
type ProgressRequest struct {
	Current int64 `json:"current" binding:"min=0"`
	Total   int64 `json:"total" binding:"min=0"`
}

// JobErrorRequest is the body of POST /api/v1/sync/:type/error.
type JobErrorRequest struct {
	Message string `json:"message" binding:"required"`
}
