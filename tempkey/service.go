// Package tempkey issues short-lived, passphrase-sealed copies of the master
// key so that users whose wrap predates a rotation can recover access
// without being told the master password.
package tempkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/internal/logger"
	"github.com/jmcleod/masterkeep/internal/util"
	"github.com/jmcleod/masterkeep/internal/uuid"
	"github.com/jmcleod/masterkeep/masterkey"
	"github.com/jmcleod/masterkeep/notify"
	"github.com/jmcleod/masterkeep/storage"
	"github.com/jmcleod/masterkeep/vault"
)

const (
	DefaultMaxAge = 14400 * time.Second

	passphraseLen = 32
)

// MasterKeys is the part of masterkey.Service the token service needs.
type MasterKeys interface {
	VerifyKey(ctx context.Context, key *masterkey.Key) error
	CurrentVersion(ctx context.Context) (int64, error)
}

// Info describes the outstanding token without exposing secrets.
type Info struct {
	ID         string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	KeyVersion int64
	Expired    bool
}

type Service struct {
	store  storage.Store
	keys   MasterKeys
	mailer notify.Mailer
	params crypto.KDFParams
	maxAge time.Duration
	now    func() time.Time
	log    *logger.Logger
}

type Option func(*Service)

func WithKDFParams(params crypto.KDFParams) Option {
	return func(s *Service) {
		s.params = params
	}
}

// WithMaxAge sets the lifetime used when Create is called without one.
func WithMaxAge(maxAge time.Duration) Option {
	return func(s *Service) {
		if maxAge > 0 {
			s.maxAge = maxAge
		}
	}
}

func WithMailer(m notify.Mailer) Option {
	return func(s *Service) {
		s.mailer = m
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

func New(store storage.Store, keys MasterKeys, opts ...Option) *Service {
	s := &Service{
		store:  store,
		keys:   keys,
		params: crypto.DefaultKDFParams(),
		maxAge: DefaultMaxAge,
		now:    time.Now,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create seals key under a fresh random passphrase and stores it, replacing
// any outstanding token. key must be the current master password. A
// non-positive maxAge selects the service default; anything else is rounded
// up to whole seconds. Only the passphrase is returned; it is never stored.
func (s *Service) Create(ctx context.Context, key *masterkey.Key, maxAge time.Duration) (string, error) {
	if maxAge <= 0 {
		maxAge = s.maxAge
	}
	if err := s.keys.VerifyKey(ctx, key); err != nil {
		return "", err
	}

	passphrase, err := util.RandomChars(passphraseLen)
	if err != nil {
		return "", err
	}
	salt, err := crypto.NewSalt()
	if err != nil {
		return "", err
	}

	now := s.now().UTC().Truncate(time.Second)
	t := &token{
		ID:         uuid.New(),
		IssuedAt:   now,
		MaxAge:     int64((maxAge + time.Second - 1) / time.Second),
		KeyVersion: key.Version(),
	}

	buf, err := key.Bytes()
	if err != nil {
		return "", err
	}
	t.Vault, err = vault.SealWith(passphrase, salt, buf.Bytes(),
		vault.WithKDFParams(s.params),
		vault.WithAAD(t.aad()),
		vault.WithCreatedAt(now),
	)
	buf.Destroy()
	if err != nil {
		return "", fmt.Errorf("sealing temporary master key: %w", err)
	}

	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshaling temporary master key: %w", err)
	}
	if err := s.store.SetConfig(ctx, storage.ConfigTempMasterKey, string(data)); err != nil {
		return "", err
	}

	s.log.Info().
		Str("token", t.ID).
		Time("expires_at", t.expiresAt()).
		Int64("version", t.KeyVersion).
		Msg("temporary master key issued")
	return passphrase, nil
}

func (s *Service) load(ctx context.Context) (*token, error) {
	data, err := s.store.GetConfig(ctx, storage.ConfigTempMasterKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var t token
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("%w: %v", vault.ErrUnwrappable, err)
	}
	return &t, nil
}

// GetUsingKey opens the outstanding token with candidate and returns the
// master key it carries.
func (s *Service) GetUsingKey(ctx context.Context, candidate string) (*masterkey.Key, error) {
	t, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if t.expired(s.now()) {
		return nil, ErrExpired
	}
	current, err := s.keys.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if t.KeyVersion < current {
		return nil, ErrStale
	}

	secret, err := t.Vault.OpenWith(candidate, vault.WithAAD(t.aad()))
	if err != nil {
		s.log.Debug().Str("token", t.ID).Msg("temporary master key rejected")
		return nil, err
	}
	defer util.WipeBytes(secret)
	return masterkey.NewKey(secret, t.KeyVersion)
}

// Check reports whether candidate opens a live token. Only storage failures
// are returned as errors.
func (s *Service) Check(ctx context.Context, candidate string) (bool, error) {
	_, err := s.GetUsingKey(ctx, candidate)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrExpired),
		errors.Is(err, vault.ErrUnwrappable):
		return false, nil
	default:
		return false, err
	}
}

// Info describes the outstanding token.
func (s *Service) Info(ctx context.Context) (Info, error) {
	t, err := s.load(ctx)
	if err != nil {
		return Info{}, err
	}
	return Info{
		ID:         t.ID,
		IssuedAt:   t.IssuedAt,
		ExpiresAt:  t.expiresAt(),
		KeyVersion: t.KeyVersion,
		Expired:    t.expired(s.now()),
	}, nil
}
