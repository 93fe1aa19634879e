package vault

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/internal/util"
)

const formatVersion = 1

// Vault holds one envelope sealed under a key derived from a secret. The
// salt and KDF parameters needed to re-derive that key travel with it.
type Vault struct {
	Ver       int              `json:"ver"`
	KDF       crypto.KDFParams `json:"kdf"`
	Salt      []byte           `json:"salt"`
	Envelope  *crypto.Envelope `json:"envelope"`
	CreatedAt time.Time        `json:"created_at"`
}

// SealWith derives a key from secret and salt and seals plaintext under it.
// The salt must be fresh for every call; see crypto.NewSalt.
func SealWith(secret string, salt, plaintext []byte, opts ...Option) (*Vault, error) {
	o := newOptions(opts...)

	key, err := crypto.DeriveKey(secret, salt, o.params)
	if err != nil {
		return nil, fmt.Errorf("deriving vault key: %w", err)
	}
	defer util.WipeBytes(key)

	env, err := crypto.Seal(key, plaintext, crypto.WithScheme(o.scheme), crypto.WithAAD(o.aad))
	if err != nil {
		return nil, err
	}

	createdAt := o.createdAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &Vault{
		Ver:       formatVersion,
		KDF:       o.params,
		Salt:      util.CopyBytes(salt),
		Envelope:  env,
		CreatedAt: createdAt.UTC(),
	}, nil
}

// OpenWith re-derives the key from secret and the embedded salt and opens
// the envelope. Every failure is reported as ErrUnwrappable.
func (v *Vault) OpenWith(secret string, opts ...Option) ([]byte, error) {
	if v == nil || v.Ver != formatVersion || v.Envelope == nil {
		return nil, ErrUnwrappable
	}
	o := newOptions(opts...)

	key, err := crypto.DeriveKey(secret, v.Salt, v.KDF)
	if err != nil {
		return nil, ErrUnwrappable
	}
	defer util.WipeBytes(key)

	plaintext, err := crypto.Open(key, v.Envelope, o.aad)
	if err != nil {
		return nil, ErrUnwrappable
	}
	return plaintext, nil
}

// NeedsRehash reports whether the vault was sealed with parameters weaker
// than params.
func (v *Vault) NeedsRehash(params crypto.KDFParams) bool {
	return v.KDF.Weaker(params)
}

func (v *Vault) Marshal() ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling vault: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a stored vault. Data that does not decode into a
// well-formed vault is ErrUnwrappable.
func Unmarshal(data []byte) (*Vault, error) {
	var v Vault
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrappable, err)
	}
	if v.Ver != formatVersion || v.Envelope == nil {
		return nil, ErrUnwrappable
	}
	return &v, nil
}
