package masterkey

import (
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/jmcleod/masterkeep/internal/util"
)

// Key is the master password held in an encrypted memguard enclave. Its
// version is the rotation watermark that was authoritative when the key was
// loaded; two keys are the same key exactly when their versions match.
type Key struct {
	enclave *memguard.Enclave
	version int64
}

// NewKey copies secret into a new enclave. The caller keeps ownership of
// secret and should wipe it.
func NewKey(secret []byte, version int64) (*Key, error) {
	if len(secret) == 0 {
		return nil, errors.New("master key must not be empty")
	}
	// NewEnclave wipes its input.
	enclave := memguard.NewEnclave(util.CopyBytes(secret))
	if enclave == nil {
		return nil, errors.New("creating master key enclave")
	}
	return &Key{enclave: enclave, version: version}, nil
}

func (k *Key) Version() int64 {
	return k.version
}

// Equal reports whether k and other are the same master key version.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return false
	}
	return k.version == other.version
}

// Bytes decrypts the enclave into a locked buffer. The caller must Destroy it.
func (k *Key) Bytes() (*memguard.LockedBuffer, error) {
	buf, err := k.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("opening master key enclave: %w", err)
	}
	return buf, nil
}

// use runs fn with the plaintext master password and destroys the buffer
// afterwards.
func (k *Key) use(fn func(secret []byte) error) error {
	buf, err := k.Bytes()
	if err != nil {
		return err
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

func (k *Key) String() string {
	return fmt.Sprintf("masterkey.Key{version: %d}", k.version)
}
