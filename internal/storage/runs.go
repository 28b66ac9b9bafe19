package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/relaychat/appcore/pkg/types"
	"github.com/sirupsen/logrus"
)

// RunRecord is one sync job run as persisted in sync_runs. History is
// append-only; the in-memory queue owns the live record.
type RunRecord struct {
	ID           string
	JobType      types.JobType
	State        types.JobState
	ErrorMessage string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// SaveRun inserts or updates a run record.
func (s *Store) SaveRun(ctx context.Context, record *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				logrus.WithError(rollbackErr).Warn("Failed to rollback transaction")
			}
		}
	}()

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM sync_runs WHERE id = ?", record.ID).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check run existence: %w", err)
	}

	if exists {
		_, err = tx.ExecContext(ctx,
			`UPDATE sync_runs
			 SET state = ?, error_message = ?, completed_at = ?
			 WHERE id = ?`,
			string(record.State),
			record.ErrorMessage,
			timeToUnixPtr(record.CompletedAt),
			record.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sync_runs (id, job_type, state, error_message, started_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			record.ID,
			string(record.JobType),
			string(record.State),
			record.ErrorMessage,
			record.StartedAt.Unix(),
			timeToUnixPtr(record.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record := &RunRecord{}
	var jobType, state string
	var startedAtUnix int64
	var completedAtUnix *int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, job_type, state, COALESCE(error_message, ''), started_at, completed_at
		 FROM sync_runs WHERE id = ?`,
		id,
	).Scan(&record.ID, &jobType, &state, &record.ErrorMessage, &startedAtUnix, &completedAtUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	record.JobType = types.JobType(jobType)
	record.State = types.JobState(state)
	record.StartedAt = time.Unix(startedAtUnix, 0)
	if completedAtUnix != nil {
		t := time.Unix(*completedAtUnix, 0)
		record.CompletedAt = &t
	}

	return record, nil
}

// ListRuns retrieves run history for one job type, newest first.
func (s *Store) ListRuns(ctx context.Context, jobType types.JobType, limit int) ([]*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_type, state, COALESCE(error_message, ''), started_at, completed_at
		 FROM sync_runs WHERE job_type = ? ORDER BY started_at DESC LIMIT ?`,
		string(jobType), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close run rows")
		}
	}()

	var records []*RunRecord
	for rows.Next() {
		record := &RunRecord{}
		var jt, state string
		var startedAtUnix int64
		var completedAtUnix *int64

		if err := rows.Scan(&record.ID, &jt, &state, &record.ErrorMessage, &startedAtUnix, &completedAtUnix); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		record.JobType = types.JobType(jt)
		record.State = types.JobState(state)
		record.StartedAt = time.Unix(startedAtUnix, 0)
		if completedAtUnix != nil {
			t := time.Unix(*completedAtUnix, 0)
			record.CompletedAt = &t
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return records, nil
}

// MarkInterruptedRuns marks runs left in the running state as failed.
// Called once at process start; a run can only still be "running" here if
// the previous process exited mid-sync.
func (s *Store) MarkInterruptedRuns(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs
		 SET state = ?, error_message = ?, completed_at = ?
		 WHERE state IN (?, ?)`,
		string(types.JobError),
		"process exited during sync",
		now,
		string(types.JobRunning),
		string(types.JobQueued),
	)
	if err != nil {
		return fmt.Errorf("failed to mark interrupted runs: %w", err)
	}

	if marked, err := result.RowsAffected(); err == nil && marked > 0 {
		logrus.WithField("count", marked).Warn("Marked interrupted sync runs as failed")
	}

	return nil
}

// DeleteOldRuns deletes finished runs older than the given duration.
func (s *Store) DeleteOldRuns(ctx context.Context, olderThan time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).Unix()

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_runs
		 WHERE state IN (?, ?) AND started_at < ?`,
		string(types.JobComplete),
		string(types.JobError),
		cutoff,
	)
	if err != nil {
		return fmt.Errorf("failed to delete old runs: %w", err)
	}

	if deleted, err := result.RowsAffected(); err == nil && deleted > 0 {
		logrus.WithField("deleted_count", deleted).Debug("Cleaned up old sync runs")
	}

	return nil
}
