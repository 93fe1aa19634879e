package crypto

import (
	"fmt"

	"github.com/jmcleod/masterkeep/internal/util"
)

const (
	EnvelopeVersion = 1

	SchemeAES256GCM         = util.SchemeAES256GCM
	SchemeXChaCha20Poly1305 = util.SchemeXChaCha20Poly1305

	KeySize = util.AEADKeySize
)

// Envelope is a self-describing AEAD ciphertext. The nonce travels with the
// ciphertext so that any holder of the key and AAD can open it.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// SealOption is a functional option for Seal.
type SealOption func(*sealOptions)

type sealOptions struct {
	scheme string
	aad    []byte
}

// WithScheme selects the AEAD used by Seal. The default is AES-256-GCM.
func WithScheme(scheme string) SealOption {
	return func(o *sealOptions) {
		o.scheme = scheme
	}
}

// WithAAD binds the envelope to associated data that must be presented again
// on Open.
func WithAAD(aad []byte) SealOption {
	return func(o *sealOptions) {
		o.aad = aad
	}
}

// Seal encrypts plaintext under key with a fresh random nonce.
func Seal(key, plaintext []byte, opts ...SealOption) (*Envelope, error) {
	o := sealOptions{scheme: SchemeAES256GCM}
	for _, opt := range opts {
		opt(&o)
	}

	nonce, ciphertext, err := util.SealAEAD(o.scheme, plaintext, key, o.aad)
	if err != nil {
		return nil, fmt.Errorf("sealing envelope: %w", err)
	}

	return &Envelope{
		Ver:        EnvelopeVersion,
		Scheme:     o.scheme,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Open authenticates and decrypts env. Every failure, including a malformed
// envelope, is reported as ErrAuthFailure.
func Open(key []byte, env *Envelope, aad []byte) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrAuthFailure)
	}
	if env.Ver != EnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", ErrAuthFailure, env.Ver)
	}
	if !util.SupportedScheme(env.Scheme) {
		return nil, fmt.Errorf("%w: unsupported envelope scheme %q", ErrAuthFailure, env.Scheme)
	}

	plaintext, err := util.OpenAEAD(env.Scheme, env.Nonce, env.Ciphertext, key, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}
	return plaintext, nil
}

// Clone returns a deep copy of env.
func (env *Envelope) Clone() *Envelope {
	if env == nil {
		return nil
	}
	return &Envelope{
		Ver:        env.Ver,
		Scheme:     env.Scheme,
		Nonce:      util.CopyBytes(env.Nonce),
		Ciphertext: util.CopyBytes(env.Ciphertext),
	}
}

// NewKey returns a fresh random key suitable for Seal.
func NewKey() ([]byte, error) {
	return util.NewAEADKey()
}
