package vault

import (
	"time"

	"github.com/jmcleod/masterkeep/crypto"
)

// Option configures SealWith and OpenWith.
type Option func(*options)

type options struct {
	params    crypto.KDFParams
	scheme    string
	aad       []byte
	createdAt time.Time
}

func newOptions(opts ...Option) options {
	o := options{
		params: crypto.DefaultKDFParams(),
		scheme: crypto.SchemeAES256GCM,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithKDFParams sets the derivation cost used by SealWith. OpenWith always
// uses the parameters recorded in the vault.
func WithKDFParams(params crypto.KDFParams) Option {
	return func(o *options) {
		o.params = params
	}
}

// WithScheme selects the AEAD used by SealWith.
func WithScheme(scheme string) Option {
	return func(o *options) {
		o.scheme = scheme
	}
}

// WithAAD binds the vault to associated data. The same AAD must be passed
// to OpenWith.
func WithAAD(aad []byte) Option {
	return func(o *options) {
		o.aad = aad
	}
}

// WithCreatedAt overrides the creation timestamp recorded by SealWith.
func WithCreatedAt(createdAt time.Time) Option {
	return func(o *options) {
		o.createdAt = createdAt
	}
}
