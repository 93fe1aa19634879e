package masterkey

import (
	"errors"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/internal/util"
)

const sessionLabel = "masterkeep:session:v1"

// SessionEnvelope is the master key sealed under a per-session key so it
// can be kept between requests without re-deriving a user wrap.
type SessionEnvelope struct {
	Version  int64            `json:"version"`
	Envelope *crypto.Envelope `json:"envelope"`
}

// SealForSession seals key under sessionKey. The version is bound as AAD.
func SealForSession(key *Key, sessionKey []byte) (*SessionEnvelope, error) {
	if key == nil {
		return nil, errors.New("nil master key")
	}
	var env *crypto.Envelope
	err := key.use(func(secret []byte) error {
		var err error
		env, err = crypto.Seal(sessionKey, secret, crypto.WithAAD(crypto.AAD(sessionLabel, key.Version())))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &SessionEnvelope{Version: key.Version(), Envelope: env}, nil
}

// OpenFromSession reverses SealForSession. Every failure is
// crypto.ErrAuthFailure.
func OpenFromSession(se *SessionEnvelope, sessionKey []byte) (*Key, error) {
	if se == nil || se.Envelope == nil {
		return nil, crypto.ErrAuthFailure
	}
	secret, err := crypto.Open(sessionKey, se.Envelope, crypto.AAD(sessionLabel, se.Version))
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(secret)
	return NewKey(secret, se.Version)
}
