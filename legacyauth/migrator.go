// Package legacyauth verifies login passwords stored in older hash formats
// and upgrades them to the current format after a successful login.
package legacyauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/internal/logger"
	"github.com/jmcleod/masterkeep/storage"
)

// Result describes a successful verification.
type Result struct {
	Strategy Strategy
	// Rehashed is set once the stored hash has been upgraded.
	Rehashed bool
	// RewrapRequired asks the caller to re-create the user's wrapped master
	// key with the verified password. See masterkey.Service.RefreshUserWrap.
	RewrapRequired bool
}

type Migrator struct {
	users  storage.UserStore
	params crypto.KDFParams
	log    *logger.Logger
}

type Option func(*Migrator)

// WithKDFParams sets the cost of upgraded hashes.
func WithKDFParams(params crypto.KDFParams) Option {
	return func(m *Migrator) {
		m.params = params
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(m *Migrator) {
		m.log = log
	}
}

func New(users storage.UserStore, opts ...Option) *Migrator {
	m := &Migrator{
		users:  users,
		params: crypto.DefaultKDFParams(),
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Verify checks candidate against u without touching storage. Legacy formats
// are only consulted when u is flagged for migration.
func (m *Migrator) Verify(u storage.User, candidate string) (Result, bool) {
	for _, s := range strategies {
		if s != Current && !u.MigrationRequired {
			break
		}
		if s.verify(u, candidate) {
			return Result{Strategy: s, RewrapRequired: s != Current}, true
		}
	}
	return Result{}, false
}

// Authenticate verifies candidate for userID. On success a legacy or weak
// hash is replaced by a current one and the migration flag cleared in a
// single update. On failure the record is left untouched.
func (m *Migrator) Authenticate(ctx context.Context, userID, candidate string) (Result, error) {
	u, err := m.users.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, ErrAuthFailed
	}
	if err != nil {
		return Result{}, err
	}

	res, ok := m.Verify(u, candidate)
	if !ok {
		m.log.Info().Str("user", userID).Msg("login rejected")
		return Result{}, ErrAuthFailed
	}

	if res.Strategy == Current && !u.MigrationRequired && !crypto.PasswordNeedsRehash(u.LoginHash, m.params) {
		return res, nil
	}

	hash, err := crypto.HashPassword(candidate, m.params)
	if err != nil {
		return Result{}, fmt.Errorf("rehashing login password: %w", err)
	}
	u.LoginHash = hash
	u.HashSalt = ""
	u.MigrationRequired = false
	if err := m.users.UpdateUser(ctx, u); err != nil {
		return Result{}, fmt.Errorf("storing upgraded login hash: %w", err)
	}
	res.Rehashed = true

	m.log.Info().
		Str("user", userID).
		Stringer("strategy", res.Strategy).
		Bool("rewrap_required", res.RewrapRequired).
		Msg("login hash upgraded")
	return res, nil
}
