package masterkey

import (
	"errors"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/storage"
	"github.com/jmcleod/masterkeep/vault"
)

// User facing messages. Authentication failures share one message so that a
// caller cannot tell which factor was wrong.
const (
	MsgInvalidCredentials = "invalid credentials"
	MsgExpired            = "token expired, request a new one"
	MsgUpdateRequired     = "master password changed, ask an administrator to update your access"
	MsgInternal           = "internal error"
)

// UserMessage maps err to a message safe to show an end user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExpired):
		return MsgExpired
	case errors.Is(err, ErrUserUpdateRequired), errors.Is(err, ErrNoWrappedKey):
		return MsgUpdateRequired
	case errors.Is(err, ErrWrongMasterPassword),
		errors.Is(err, ErrStaleKey),
		errors.Is(err, vault.ErrUnwrappable),
		errors.Is(err, crypto.ErrAuthFailure),
		errors.Is(err, storage.ErrNotFound):
		return MsgInvalidCredentials
	default:
		return MsgInternal
	}
}
