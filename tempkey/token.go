package tempkey

import (
	"time"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/vault"
)

const tokenLabel = "masterkeep:tempkey:v1"

// token is the persisted form of a temporary master key. Its metadata is
// bound to the sealed master password as AAD, so editing the expiry breaks
// the seal.
type token struct {
	ID         string       `json:"id"`
	Vault      *vault.Vault `json:"vault"`
	IssuedAt   time.Time    `json:"issued_at"`
	MaxAge     int64        `json:"max_age_seconds"`
	KeyVersion int64        `json:"key_version"`
}

func (t *token) aad() []byte {
	return crypto.AAD(tokenLabel, t.ID, t.IssuedAt.Unix(), t.MaxAge, t.KeyVersion)
}

func (t *token) expiresAt() time.Time {
	return t.IssuedAt.Add(time.Duration(t.MaxAge) * time.Second)
}

// expired reports whether the token is past its expiry at now. A token is
// still valid at exactly issuedAt + maxAge.
func (t *token) expired(now time.Time) bool {
	return now.After(t.expiresAt())
}
