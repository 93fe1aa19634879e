package crypto

import (
	"fmt"

	"github.com/jmcleod/masterkeep/internal/util"
)

const (
	AlgorithmArgon2id = "argon2id"

	// MinSaltLen is 128 bits.
	MinSaltLen = 16
)

// Named KDF profiles for different deployment scenarios.
const (
	KDFProfileInteractive = util.Argon2idProfileInteractive // sub-second, dev/testing
	KDFProfileModerate    = util.Argon2idProfileModerate    // production default
	KDFProfileSensitive   = util.Argon2idProfileSensitive   // high-value secrets
)

// KDFParams records the derivation function and cost that produced a key.
// It is stored next to every sealed value so costs can be raised without
// breaking older envelopes.
type KDFParams struct {
	Algorithm   string `json:"alg"`
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
}

func fromArgon2id(p util.Argon2idParams) KDFParams {
	return KDFParams{
		Algorithm:   AlgorithmArgon2id,
		Time:        p.Time,
		MemoryKiB:   p.MemoryKiB,
		Parallelism: p.Parallelism,
		KeyLen:      p.KeyLen,
	}
}

func (p KDFParams) argon2id() util.Argon2idParams {
	return util.Argon2idParams{
		Time:        p.Time,
		MemoryKiB:   p.MemoryKiB,
		Parallelism: p.Parallelism,
		KeyLen:      p.KeyLen,
	}
}

// DefaultKDFParams returns the moderate profile.
func DefaultKDFParams() KDFParams {
	return fromArgon2id(util.DefaultArgon2idParams())
}

// KDFProfile returns the parameters for a named profile. An empty name
// selects the default.
func KDFProfile(name string) (KDFParams, error) {
	p, err := util.Argon2idProfile(name)
	if err != nil {
		return KDFParams{}, fmt.Errorf("%w: %w", ErrInvalidKDFParams, err)
	}
	return fromArgon2id(p), nil
}

// ValidateKDFParams checks that p names a supported algorithm and meets the
// minimum cost thresholds.
func ValidateKDFParams(p KDFParams) error {
	if p.Algorithm != AlgorithmArgon2id {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidKDFParams, p.Algorithm)
	}
	if err := util.ValidateArgon2idParams(p.argon2id()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKDFParams, err)
	}
	return nil
}

// Weaker reports whether p is cheaper than target in any dimension or uses
// a different algorithm.
func (p KDFParams) Weaker(target KDFParams) bool {
	if p.Algorithm != target.Algorithm {
		return true
	}
	return p.argon2id().Weaker(target.argon2id())
}

// DeriveKey turns a low-entropy secret and a per-subject salt into a
// KeyLen-byte key. The secret is NFKD-normalized first.
func DeriveKey(secret string, salt []byte, p KDFParams) ([]byte, error) {
	if len(salt) < MinSaltLen {
		return nil, fmt.Errorf("%w: got %d bytes, want at least %d", ErrSaltTooShort, len(salt), MinSaltLen)
	}
	if err := ValidateKDFParams(p); err != nil {
		return nil, err
	}

	secretBytes := []byte(util.Normalize(secret))
	defer util.WipeBytes(secretBytes)

	return util.DeriveArgon2idKey(secretBytes, salt, p.argon2id())
}

// DeriveSubkey expands high-entropy key material into a 32-byte key bound to
// salt and info (HKDF-SHA256). It is fast and must not be used on passwords.
func DeriveSubkey(ikm, salt, info []byte) ([]byte, error) {
	return util.HKDF(ikm, salt, info)
}

// NewSalt returns MinSaltLen fresh random bytes.
func NewSalt() ([]byte, error) {
	return util.RandomBytes(MinSaltLen)
}
