// Package masterkey owns the master password lifecycle: verification,
// per-user wrapped copies, rotation and the rotation watermark.
package masterkey

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/internal/logger"
	"github.com/jmcleod/masterkeep/storage"
)

// ReencryptFunc re-seals every stored credential from oldKey to newKey. It
// must either re-seal all of them or leave all of them untouched.
type ReencryptFunc func(ctx context.Context, oldKey, newKey *Key) error

// ChangeRequest carries the secrets needed for a rotation. UserID is the
// administrator performing it; their wrapped copy is re-created under
// LoginPassword as part of the same commit.
type ChangeRequest struct {
	UserID            string
	OldMasterPassword string
	NewMasterPassword string
	// LoginPassword must match the user's Argon2id login hash. Accounts
	// still on a legacy hash have to authenticate through legacyauth first.
	LoginPassword string
}

type Service struct {
	store  storage.Store
	params crypto.KDFParams
	scheme string
	now    func() time.Time
	log    *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithKDFParams sets the cost used for new hashes and wraps.
func WithKDFParams(params crypto.KDFParams) Option {
	return func(s *Service) {
		s.params = params
	}
}

// WithScheme sets the AEAD used for new wraps.
func WithScheme(scheme string) Option {
	return func(s *Service) {
		s.scheme = scheme
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

func New(store storage.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		params: crypto.DefaultKDFParams(),
		scheme: crypto.SchemeAES256GCM,
		now:    time.Now,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckMasterPassword reports whether candidate matches the stored master
// password hash. The comparison is constant time.
func (s *Service) CheckMasterPassword(ctx context.Context, candidate string) (bool, error) {
	hash, err := s.store.GetConfig(ctx, storage.ConfigMasterPasswordHash)
	if errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	if err != nil {
		return false, err
	}
	ok, err := crypto.VerifyPassword(hash, candidate)
	if err != nil {
		return false, fmt.Errorf("verifying master password: %w", err)
	}
	return ok, nil
}

// CurrentVersion returns the rotation watermark, or 0 if no master password
// has ever been set.
func (s *Service) CurrentVersion(ctx context.Context) (int64, error) {
	v, err := s.store.GetConfig(ctx, storage.ConfigMasterPasswordTime)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	version, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", storage.ConfigMasterPasswordTime, err)
	}
	return version, nil
}

// CheckUserUpdateRequired reports whether a wrap created at lastWrapAt
// predates the last rotation.
func (s *Service) CheckUserUpdateRequired(ctx context.Context, lastWrapAt time.Time) (bool, error) {
	if lastWrapAt.IsZero() {
		return true, nil
	}
	version, err := s.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	return lastWrapAt.Unix() < version, nil
}

// VerifyKey checks that key is the authoritative master password.
func (s *Service) VerifyKey(ctx context.Context, key *Key) error {
	if key == nil {
		return ErrWrongMasterPassword
	}
	version, err := s.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if key.Version() != version {
		return fmt.Errorf("%w: version %d, current %d", ErrStaleKey, key.Version(), version)
	}
	var ok bool
	err = key.use(func(secret []byte) error {
		var err error
		ok, err = s.CheckMasterPassword(ctx, string(secret))
		return err
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrWrongMasterPassword
	}
	return nil
}

// Load verifies masterPassword and returns it as the current Key.
func (s *Service) Load(ctx context.Context, masterPassword string) (*Key, error) {
	ok, err := s.CheckMasterPassword(ctx, masterPassword)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWrongMasterPassword
	}
	version, err := s.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	return NewKey([]byte(masterPassword), version)
}

// nextVersion returns a watermark strictly greater than both the previous
// one and every wrap timestamp already written.
func (s *Service) nextVersion(previous int64) int64 {
	next := s.now().Unix() + 1
	if next <= previous {
		next = previous + 1
	}
	return next
}

// UpdateConfig stores a pre-computed master password hash and advances the
// watermark, bypassing verification and re-encryption. It is an
// administrative operation for installers and recovery.
func (s *Service) UpdateConfig(ctx context.Context, hash string) error {
	_, err := s.updateConfig(ctx, hash)
	return err
}

func (s *Service) updateConfig(ctx context.Context, hash string) (int64, error) {
	if _, _, _, err := crypto.ParsePasswordHash(hash); err != nil {
		return 0, err
	}
	previous, err := s.CurrentVersion(ctx)
	if err != nil {
		return 0, err
	}
	version := s.nextVersion(previous)

	err = s.store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.SetConfig(storage.ConfigMasterPasswordHash, hash); err != nil {
			return err
		}
		return tx.SetConfig(storage.ConfigMasterPasswordTime, strconv.FormatInt(version, 10))
	})
	if err != nil {
		return 0, err
	}
	s.log.Warn().Int64("version", version).Msg("master password hash replaced")
	return version, nil
}

// Bootstrap sets the first master password and returns it as a Key.
func (s *Service) Bootstrap(ctx context.Context, masterPassword string) (*Key, error) {
	if masterPassword == "" {
		return nil, errors.New("master password must not be empty")
	}
	_, err := s.store.GetConfig(ctx, storage.ConfigMasterPasswordHash)
	if err == nil {
		return nil, ErrAlreadyConfigured
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	hash, err := crypto.HashPassword(masterPassword, s.params)
	if err != nil {
		return nil, err
	}
	version, err := s.updateConfig(ctx, hash)
	if err != nil {
		return nil, err
	}
	return NewKey([]byte(masterPassword), version)
}

// ChangeMasterPassword rotates the master password. The new hash, the new
// watermark and the caller's new wrap are committed together, and only
// after reencrypt has succeeded. Every failure before the commit is
// ErrRotationAborted and leaves the old master password authoritative.
func (s *Service) ChangeMasterPassword(ctx context.Context, req ChangeRequest, reencrypt ReencryptFunc) (*Key, error) {
	abort := func(err error) (*Key, error) {
		s.log.Warn().Err(err).Str("user", req.UserID).Msg("master password rotation aborted")
		return nil, fmt.Errorf("%w: %w", ErrRotationAborted, err)
	}

	if reencrypt == nil {
		return abort(errors.New("no re-encryption callback"))
	}
	if req.NewMasterPassword == "" {
		return abort(errors.New("new master password must not be empty"))
	}

	ok, err := s.CheckMasterPassword(ctx, req.OldMasterPassword)
	if err != nil {
		return abort(err)
	}
	if !ok {
		return abort(ErrWrongMasterPassword)
	}

	oldVersion, err := s.CurrentVersion(ctx)
	if err != nil {
		return abort(err)
	}
	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		return abort(err)
	}
	// The new wrap is sealed under LoginPassword; it has to be the one the
	// user actually logs in with or the wrap is unreachable.
	if ok, err := crypto.VerifyPassword(user.LoginHash, req.LoginPassword); err != nil || !ok {
		return abort(fmt.Errorf("login password of %s: %w", user.ID, crypto.ErrAuthFailure))
	}

	newVersion := s.nextVersion(oldVersion)
	oldKey, err := NewKey([]byte(req.OldMasterPassword), oldVersion)
	if err != nil {
		return abort(err)
	}
	newKey, err := NewKey([]byte(req.NewMasterPassword), newVersion)
	if err != nil {
		return abort(err)
	}

	newHash, err := crypto.HashPassword(req.NewMasterPassword, s.params)
	if err != nil {
		return abort(err)
	}
	wrapAt := time.Unix(newVersion, 0).UTC()
	wrapped, err := s.sealWrap(user.ID, req.LoginPassword, newKey, wrapAt)
	if err != nil {
		return abort(err)
	}

	if err := reencrypt(ctx, oldKey, newKey); err != nil {
		return abort(fmt.Errorf("re-encrypting credentials: %w", err))
	}

	err = s.store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.SetConfig(storage.ConfigMasterPasswordHash, newHash); err != nil {
			return err
		}
		if err := tx.SetConfig(storage.ConfigMasterPasswordTime, strconv.FormatInt(newVersion, 10)); err != nil {
			return err
		}
		return tx.SetUserWrap(user.ID, wrapped, wrapAt)
	})
	if err != nil {
		// Credentials are already sealed under the new key; put them back
		// so that the old, still committed, master password opens them.
		if rbErr := reencrypt(context.WithoutCancel(ctx), newKey, oldKey); rbErr != nil {
			s.log.Error().Err(rbErr).Msg("restoring credentials after failed rotation commit")
			return abort(errors.Join(err, rbErr))
		}
		return abort(err)
	}

	s.log.Info().
		Str("user", req.UserID).
		Int64("old_version", oldVersion).
		Int64("version", newVersion).
		Msg("master password rotated")
	return newKey, nil
}
