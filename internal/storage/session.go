package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/relaychat/appcore/pkg/types"
)

// ErrNoSession indicates no locally cached session exists (first run, or
// after a reset). Callers treat this as a successful empty-session result,
// not a failure.
var ErrNoSession = errors.New("no cached session")

// LoadSession returns the locally cached auth session.
func (s *Store) LoadSession(ctx context.Context) (types.Session, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var session types.Session
	var accountID string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, token, account_id FROM session ORDER BY created_at DESC LIMIT 1",
	).Scan(&session.ID, &session.Token, &accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, "", ErrNoSession
		}
		return types.Session{}, "", fmt.Errorf("failed to load session: %w", err)
	}

	return session, accountID, nil
}

// SaveSession caches an auth session locally, replacing any previous one.
func (s *Store) SaveSession(ctx context.Context, session types.Session, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM session"); err != nil {
		return fmt.Errorf("failed to clear previous session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO session (id, token, account_id, created_at) VALUES (?, ?, ?, ?)",
		session.ID, session.Token, accountID, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	committed = true

	return nil
}
