package util

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const HKDFKeyLength = 32

// HKDF expands ikm into a 32-byte key bound to salt and info using
// HKDF-SHA256.
func HKDF(ikm, salt, info []byte) ([]byte, error) {
	if len(ikm) == 0 {
		return nil, fmt.Errorf("hkdf: empty input key material")
	}
	h := hkdf.New(sha256.New, ikm, salt, info)
	k := make([]byte, HKDFKeyLength)
	if _, err := io.ReadFull(h, k); err != nil {
		return nil, fmt.Errorf("reading from HKDF: %w", err)
	}
	return k, nil
}
