package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/relaychat/appcore/pkg/types"
	"github.com/sirupsen/logrus"
)

// Flag names as persisted in boot_flags.
const (
	FlagHasPermissions     = "has_permissions"
	FlagHasEmail           = "has_email"
	FlagHasPhoneType       = "has_phone_type"
	FlagSecureStorageReady = "secure_storage_ready"
)

// ReadFlags returns an immutable snapshot of the persisted completion flags.
// Missing flags read as false.
func (s *Store) ReadFlags(ctx context.Context) (types.FlagSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM boot_flags")
	if err != nil {
		return types.FlagSnapshot{}, fmt.Errorf("failed to query flags: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close flag rows")
		}
	}()

	var snapshot types.FlagSnapshot
	for rows.Next() {
		var name string
		var value int
		if err := rows.Scan(&name, &value); err != nil {
			return types.FlagSnapshot{}, fmt.Errorf("failed to scan flag: %w", err)
		}

		set := value != 0
		switch name {
		case FlagHasPermissions:
			snapshot.HasPermissions = set
		case FlagHasEmail:
			snapshot.HasEmail = set
		case FlagHasPhoneType:
			snapshot.HasPhoneType = set
		case FlagSecureStorageReady:
			snapshot.SecureStorageReady = set
		default:
			logrus.WithField("flag", name).Debug("Ignoring unknown persisted flag")
		}
	}

	if err := rows.Err(); err != nil {
		return types.FlagSnapshot{}, fmt.Errorf("error iterating flags: %w", err)
	}

	return snapshot, nil
}

// SetFlag writes one flag. The UPSERT is a single statement, so concurrent
// writers to different flags in quick succession never see torn state.
func (s *Store) SetFlag(ctx context.Context, name string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := 0
	if value {
		v = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boot_flags (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, v, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to set flag %s: %w", name, err)
	}

	logrus.WithFields(logrus.Fields{"flag": name, "value": value}).Debug("Persisted flag")
	return nil
}
