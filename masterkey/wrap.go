package masterkey

import (
	"context"
	"time"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/internal/util"
	"github.com/jmcleod/masterkeep/storage"
	"github.com/jmcleod/masterkeep/vault"
)

const userWrapLabel = "masterkeep:user-wrap:v1"

func userWrapAAD(userID string) []byte {
	return crypto.AAD(userWrapLabel, userID)
}

// sealWrap seals the master password in key under the user's login
// password. The AAD binds the wrap to userID.
func (s *Service) sealWrap(userID, loginPassword string, key *Key, at time.Time) ([]byte, error) {
	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, err
	}
	var data []byte
	err = key.use(func(secret []byte) error {
		v, err := vault.SealWith(loginPassword, salt, secret,
			vault.WithKDFParams(s.params),
			vault.WithScheme(s.scheme),
			vault.WithAAD(userWrapAAD(userID)),
			vault.WithCreatedAt(at),
		)
		if err != nil {
			return err
		}
		data, err = v.Marshal()
		return err
	})
	return data, err
}

// UnwrapForUser opens the user's wrapped copy of the master password with
// their login password. A wrong login password and a tampered wrap are both
// vault.ErrUnwrappable; a wrap older than the last rotation is
// ErrUserUpdateRequired.
func (s *Service) UnwrapForUser(ctx context.Context, userID, loginPassword string) (*Key, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(user.WrappedMasterKey) == 0 {
		return nil, ErrNoWrappedKey
	}

	version, err := s.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if user.WrappedMasterKeyAt.IsZero() || user.WrappedMasterKeyAt.Unix() < version {
		return nil, ErrUserUpdateRequired
	}

	v, err := vault.Unmarshal(user.WrappedMasterKey)
	if err != nil {
		return nil, err
	}
	secret, err := v.OpenWith(loginPassword, vault.WithAAD(userWrapAAD(userID)))
	if err != nil {
		s.log.Debug().Str("user", userID).Msg("master key unwrap failed")
		return nil, err
	}
	defer util.WipeBytes(secret)

	return NewKey(secret, version)
}

// WrapForUser stores a new wrapped copy of key for the user. key must be the
// current master password.
func (s *Service) WrapForUser(ctx context.Context, userID, loginPassword string, key *Key) error {
	if err := s.VerifyKey(ctx, key); err != nil {
		return err
	}
	return s.storeWrap(ctx, userID, loginPassword, key)
}

// RefreshUserWrap re-wraps the master password after the user changed their
// login password.
func (s *Service) RefreshUserWrap(ctx context.Context, userID, oldLoginPassword, newLoginPassword string) error {
	key, err := s.UnwrapForUser(ctx, userID, oldLoginPassword)
	if err != nil {
		return err
	}
	return s.storeWrap(ctx, userID, newLoginPassword, key)
}

func (s *Service) storeWrap(ctx context.Context, userID, loginPassword string, key *Key) error {
	at := s.now().UTC()
	if at.Unix() < key.Version() {
		at = time.Unix(key.Version(), 0).UTC()
	}
	wrapped, err := s.sealWrap(userID, loginPassword, key, at)
	if err != nil {
		return err
	}

	err = s.store.Update(ctx, func(tx storage.Tx) error {
		return tx.SetUserWrap(userID, wrapped, at)
	})
	if err != nil {
		return err
	}
	s.log.Debug().Str("user", userID).Int64("version", key.Version()).Msg("master key wrapped")
	return nil
}
