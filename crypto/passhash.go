package crypto

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/jmcleod/masterkeep/internal/util"
	"golang.org/x/crypto/argon2"
)

// HashPassword returns an Argon2id hash of password in the PHC string
// format, e.g. $argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>.
func HashPassword(password string, p KDFParams) (string, error) {
	salt, err := NewSalt()
	if err != nil {
		return "", err
	}
	key, err := DeriveKey(password, salt, p)
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(key)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.MemoryKiB, p.Time, p.Parallelism,
		util.B64Encode(salt), util.B64Encode(key)), nil
}

// VerifyPassword re-derives the hash of password with the parameters and
// salt embedded in encoded and compares it in constant time.
func VerifyPassword(encoded, password string) (bool, error) {
	p, salt, want, err := ParsePasswordHash(encoded)
	if err != nil {
		return false, err
	}
	got, err := DeriveKey(password, salt, p)
	if err != nil {
		return false, err
	}
	defer util.WipeBytes(got)

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// PasswordNeedsRehash reports whether encoded was produced with parameters
// weaker than p, or cannot be parsed at all.
func PasswordNeedsRehash(encoded string, p KDFParams) bool {
	current, _, _, err := ParsePasswordHash(encoded)
	if err != nil {
		return true
	}
	return current.Weaker(p)
}

// ParsePasswordHash splits a PHC Argon2id string into its parameters, salt
// and derived key.
func ParsePasswordHash(encoded string) (KDFParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != AlgorithmArgon2id {
		return KDFParams{}, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return KDFParams{}, nil, nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if version != argon2.Version {
		return KDFParams{}, nil, nil, fmt.Errorf("%w: unsupported argon2 version %d", ErrMalformedHash, version)
	}

	p := KDFParams{Algorithm: AlgorithmArgon2id}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Time, &p.Parallelism); err != nil {
		return KDFParams{}, nil, nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}

	salt, err := util.B64Decode(parts[4])
	if err != nil {
		return KDFParams{}, nil, nil, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	key, err := util.B64Decode(parts[5])
	if err != nil {
		return KDFParams{}, nil, nil, fmt.Errorf("%w: key: %v", ErrMalformedHash, err)
	}
	p.KeyLen = uint32(len(key))

	return p, salt, key, nil
}
