package util

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	Argon2idKeyLen = 32

	MinArgon2idTime      = 1
	MinArgon2idMemoryKiB = 19 * 1024
	MaxArgon2idMemoryKiB = 4 * 1024 * 1024
	MinArgon2idThreads   = 1
)

type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
}

// Named cost profiles, weakest first.
const (
	Argon2idProfileInteractive = "interactive"
	Argon2idProfileModerate    = "moderate"
	Argon2idProfileSensitive   = "sensitive"
)

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        3,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      Argon2idKeyLen,
	}
}

func Argon2idProfile(name string) (Argon2idParams, error) {
	switch name {
	case Argon2idProfileInteractive:
		return Argon2idParams{Time: 2, MemoryKiB: 19 * 1024, Parallelism: 1, KeyLen: Argon2idKeyLen}, nil
	case "", Argon2idProfileModerate:
		return DefaultArgon2idParams(), nil
	case Argon2idProfileSensitive:
		return Argon2idParams{Time: 4, MemoryKiB: 128 * 1024, Parallelism: 4, KeyLen: Argon2idKeyLen}, nil
	default:
		return Argon2idParams{}, fmt.Errorf("unknown argon2id profile %q", name)
	}
}

func ValidateArgon2idParams(p Argon2idParams) error {
	if p.Time < MinArgon2idTime {
		return fmt.Errorf("argon2id time must be at least %d, got %d", MinArgon2idTime, p.Time)
	}
	if p.MemoryKiB < MinArgon2idMemoryKiB {
		return fmt.Errorf("argon2id memory must be at least %d KiB, got %d", MinArgon2idMemoryKiB, p.MemoryKiB)
	}
	if p.MemoryKiB > MaxArgon2idMemoryKiB {
		return fmt.Errorf("argon2id memory must be at most %d KiB, got %d", MaxArgon2idMemoryKiB, p.MemoryKiB)
	}
	if p.Parallelism < MinArgon2idThreads {
		return fmt.Errorf("argon2id parallelism must be at least %d", MinArgon2idThreads)
	}
	if p.KeyLen != Argon2idKeyLen {
		return fmt.Errorf("argon2id key length must be %d bytes", Argon2idKeyLen)
	}
	return nil
}

// Weaker reports whether p costs less than target in any dimension.
func (p Argon2idParams) Weaker(target Argon2idParams) bool {
	return p.Time < target.Time || p.MemoryKiB < target.MemoryKiB || p.Parallelism < target.Parallelism
}

func DeriveArgon2idKey(secret, salt []byte, params Argon2idParams) ([]byte, error) {
	if err := ValidateArgon2idParams(params); err != nil {
		return nil, err
	}
	return argon2.IDKey(secret, salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen), nil
}
