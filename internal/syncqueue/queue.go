// Package syncqueue coordinates the background data-import jobs (contacts,
// messages, email). It enforces single-flight per job type, isolates
// failures between types, and exposes a derived snapshot for the
// presentation layer's sync indicator. Both onboarding and the dashboard
// share this one coordination primitive.
package syncqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relaychat/appcore/pkg/types"
	"github.com/sirupsen/logrus"
)

// AlreadyRunningError is returned by Start when a job of the same type is
// already running. Callers must check state, not assume.
type AlreadyRunningError struct {
	Type types.JobType
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("%s import is already running", e.Type)
}

// JobInProgressError is returned by Reset when jobs are still running and
// force was not set.
type JobInProgressError struct {
	Types []types.JobType
}

func (e *JobInProgressError) Error() string {
	return fmt.Sprintf("jobs still running: %v", e.Types)
}

// NotRunningError is returned by Complete and Fail when the job is not in
// the running state.
type NotRunningError struct {
	Type  types.JobType
	State types.JobState
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("%s import is %s, not running", e.Type, e.State)
}

// HistoryStore persists job run history. Optional; a nil store disables
// persistence.
type HistoryStore interface {
	SaveRun(ctx context.Context, record *RunRecord) error
}

// RunRecord mirrors storage.RunRecord without importing the storage package,
// keeping the queue free of the sqlite dependency.
type RunRecord struct {
	ID           string
	JobType      types.JobType
	State        types.JobState
	ErrorMessage string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// job is the live record for one job type. Exactly one per type, keyed in
// the queue map: that structural choice is what enforces single-flight.
type job struct {
	state        types.JobState
	runID        string
	startedAt    *time.Time
	completedAt  *time.Time
	errorMessage string
	progress     *types.ProgressInfo
}

// Observer is notified of job state transitions (metrics hook).
type Observer func(jobType types.JobType, state types.JobState)

// Queue is the sync coordination queue. All methods are safe for concurrent
// use; a single queue-wide lock guards the map, which is acceptable at this
// write frequency.
type Queue struct {
	mu       sync.Mutex
	jobs     map[types.JobType]*job
	history  HistoryStore
	observer Observer
	log      *logrus.Entry
}

// New creates an empty queue. history and observer may be nil.
func New(history HistoryStore, observer Observer) *Queue {
	return &Queue{
		jobs:     make(map[types.JobType]*job),
		history:  history,
		observer: observer,
		log:      logrus.WithField("component", "syncqueue"),
	}
}

// Reset clears all job records, e.g. at the start of a fresh onboarding
// session. Refuses with JobInProgressError if any job is running and force
// is false. A forced reset records running jobs as abandoned; the underlying
// import is not guaranteed to stop, which is acceptable because imports are
// idempotent.
func (q *Queue) Reset(ctx context.Context, force bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var running []types.JobType
	for t, j := range q.jobs {
		if j.state == types.JobRunning {
			running = append(running, t)
		}
	}
	if len(running) > 0 && !force {
		return &JobInProgressError{Types: running}
	}

	for t, j := range q.jobs {
		if j.state == types.JobRunning {
			q.log.WithField("job_type", t).Warn("Force reset abandoning running import")
			q.persist(ctx, t, j, types.JobError, "abandoned by reset")
			q.notify(t, types.JobError)
		}
	}

	q.jobs = make(map[types.JobType]*job)
	q.log.WithField("force", force).Info("Sync queue reset")
	return nil
}

// Enqueue creates a job record in the queued state if none exists for the
// type. A no-op when a record is already queued or running.
func (q *Queue) Enqueue(jobType types.JobType) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if j, ok := q.jobs[jobType]; ok {
		if j.state == types.JobQueued || j.state == types.JobRunning {
			return
		}
	}

	q.jobs[jobType] = &job{state: types.JobQueued}
	q.notify(jobType, types.JobQueued)
	q.log.WithField("job_type", jobType).Debug("Import queued")
}

// Start transitions a job to running. This is the single-flight guarantee:
// starting a type that is already running fails with AlreadyRunningError.
// Starting an unqueued type implicitly queues it first.
func (q *Queue) Start(ctx context.Context, jobType types.JobType) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobType]
	if ok && j.state == types.JobRunning {
		return &AlreadyRunningError{Type: jobType}
	}
	if !ok {
		j = &job{state: types.JobQueued}
		q.jobs[jobType] = j
	}

	now := time.Now()
	j.state = types.JobRunning
	j.runID = uuid.New().String()
	j.startedAt = &now
	j.completedAt = nil
	j.errorMessage = ""
	j.progress = nil

	q.persist(ctx, jobType, j, types.JobRunning, "")
	q.notify(jobType, types.JobRunning)
	q.log.WithFields(logrus.Fields{"job_type": jobType, "run_id": j.runID}).Info("Import started")
	return nil
}

// Progress updates the running job's progress. A logged no-op when the job
// is not running.
func (q *Queue) Progress(jobType types.JobType, current, total int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobType]
	if !ok || j.state != types.JobRunning {
		q.log.WithField("job_type", jobType).Debug("Ignoring progress for non-running import")
		return
	}

	j.progress = &types.ProgressInfo{Current: current, Total: total}
}

// Complete transitions a running job to complete.
func (q *Queue) Complete(ctx context.Context, jobType types.JobType) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobType]
	if !ok || j.state != types.JobRunning {
		return q.notRunning(jobType, j, ok)
	}

	now := time.Now()
	j.state = types.JobComplete
	j.completedAt = &now

	q.persist(ctx, jobType, j, types.JobComplete, "")
	q.notify(jobType, types.JobComplete)
	q.log.WithField("job_type", jobType).Info("Import complete")
	return nil
}

// Fail transitions a running job to the error state. Other job types are
// never affected: a failed messages import must not block or roll back a
// contacts import.
func (q *Queue) Fail(ctx context.Context, jobType types.JobType, message string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobType]
	if !ok || j.state != types.JobRunning {
		return q.notRunning(jobType, j, ok)
	}

	now := time.Now()
	j.state = types.JobError
	j.completedAt = &now
	j.errorMessage = message

	q.persist(ctx, jobType, j, types.JobError, message)
	q.notify(jobType, types.JobError)
	q.log.WithFields(logrus.Fields{"job_type": jobType, "error": message}).Warn("Import failed")
	return nil
}

// Snapshot returns the derived read model. Every known job type appears;
// types without a record report idle. IsAnyRunning is the logical OR over
// all jobs' running state.
func (q *Queue) Snapshot() types.SyncSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := types.SyncSnapshot{Jobs: make(map[types.JobType]types.SyncJob)}
	for _, t := range types.JobTypes() {
		record := types.SyncJob{Type: t, State: types.JobIdle}
		if j, ok := q.jobs[t]; ok {
			record.State = j.state
			record.StartedAt = j.startedAt
			record.CompletedAt = j.completedAt
			record.ErrorMessage = j.errorMessage
			if j.progress != nil {
				p := *j.progress
				record.Progress = &p
			}
			if j.state == types.JobRunning {
				snapshot.IsAnyRunning = true
			}
		}
		snapshot.Jobs[t] = record
	}
	return snapshot
}

// Runner executes one import. The queue only observes lifecycle
// transitions; the runner's internals stay opaque.
type Runner interface {
	Run(ctx context.Context, progress func(current, total int64)) error
}

// Run enqueues and starts jobType, then executes runner in a background
// goroutine, driving the record through complete or fail. Returns without
// blocking once the job is running.
func (q *Queue) Run(ctx context.Context, jobType types.JobType, runner Runner) error {
	q.Enqueue(jobType)
	if err := q.Start(ctx, jobType); err != nil {
		return err
	}

	go func() {
		err := runner.Run(ctx, func(current, total int64) {
			q.Progress(jobType, current, total)
		})
		if err != nil {
			if failErr := q.Fail(ctx, jobType, err.Error()); failErr != nil {
				q.log.WithError(failErr).Warn("Failed to record import failure")
			}
			return
		}
		if completeErr := q.Complete(ctx, jobType); completeErr != nil {
			q.log.WithError(completeErr).Warn("Failed to record import completion")
		}
	}()

	return nil
}

// notRunning builds the typed error for an invalid complete/fail call.
func (q *Queue) notRunning(jobType types.JobType, j *job, ok bool) error {
	state := types.JobIdle
	if ok {
		state = j.state
	}
	return &NotRunningError{Type: jobType, State: state}
}

// persist writes run history through the optional store. Called with the
// queue lock held; history failures are logged, never propagated, since the
// live record is authoritative.
func (q *Queue) persist(ctx context.Context, jobType types.JobType, j *job, state types.JobState, message string) {
	if q.history == nil || j.runID == "" {
		return
	}

	started := time.Now()
	if j.startedAt != nil {
		started = *j.startedAt
	}
	record := &RunRecord{
		ID:           j.runID,
		JobType:      jobType,
		State:        state,
		ErrorMessage: message,
		StartedAt:    started,
		CompletedAt:  j.completedAt,
	}
	if err := q.history.SaveRun(ctx, record); err != nil {
		q.log.WithError(err).WithField("job_type", jobType).Warn("Failed to persist sync run")
	}
}

func (q *Queue) notify(jobType types.JobType, state types.JobState) {
	if q.observer != nil {
		q.observer(jobType, state)
	}
}
