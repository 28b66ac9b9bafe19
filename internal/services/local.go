// Package services provides the default local implementations of the boot
// collaborators, backed by the core database. The real platform keychain and
// identity-provider integrations live in the native shell behind the same
// interfaces; these defaults let the daemon boot and be exercised on its
// own.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaychat/appcore/internal/boot"
	"github.com/relaychat/appcore/internal/storage"
	"github.com/relaychat/appcore/pkg/types"
	"github.com/sirupsen/logrus"
)

// LocalCredentialStore treats the core database as the secure store:
// initialization verifies integrity, and a failed check classifies as
// storage corruption (non-recoverable).
type LocalCredentialStore struct {
	store *storage.Store
}

// NewLocalCredentialStore wraps the given store.
func NewLocalCredentialStore(store *storage.Store) *LocalCredentialStore {
	return &LocalCredentialStore{store: store}
}

// Initialize verifies the local database.
func (s *LocalCredentialStore) Initialize(ctx context.Context) error {
	if err := s.store.Check(ctx); err != nil {
		return fmt.Errorf("%w: %w", boot.ErrStorageCorrupt, err)
	}
	return nil
}

// LocalAuthService restores the session cached in the core database. An
// absent session is a successful first-run result, not a failure.
type LocalAuthService struct {
	store *storage.Store
	log   *logrus.Entry
}

// NewLocalAuthService wraps the given store.
func NewLocalAuthService(store *storage.Store) *LocalAuthService {
	return &LocalAuthService{
		store: store,
		log:   logrus.WithField("component", "auth"),
	}
}

// LoadSession returns the cached session, or an empty session on first run.
func (s *LocalAuthService) LoadSession(ctx context.Context) (types.Session, error) {
	session, _, err := s.store.LoadSession(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNoSession) {
			s.log.Info("No cached session; first run")
			return types.Session{}, nil
		}
		return types.Session{}, err
	}
	return session, nil
}

// LocalUserDataService loads the signed-in user's local data: the account
// bound to the cached session plus the current flag snapshot.
type LocalUserDataService struct {
	store *storage.Store
}

// NewLocalUserDataService wraps the given store.
func NewLocalUserDataService(store *storage.Store) *LocalUserDataService {
	return &LocalUserDataService{store: store}
}

// LoadUserData assembles the user data read model.
func (s *LocalUserDataService) LoadUserData(ctx context.Context, session types.Session) (types.UserData, error) {
	flags, err := s.store.ReadFlags(ctx)
	if err != nil {
		return types.UserData{}, err
	}

	data := types.UserData{Flags: flags}
	if session.ID == "" {
		// First run: nothing else to load.
		return data, nil
	}

	_, accountID, err := s.store.LoadSession(ctx)
	if err != nil && !errors.Is(err, storage.ErrNoSession) {
		return types.UserData{}, err
	}
	data.AccountID = accountID
	return data, nil
}
