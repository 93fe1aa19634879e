package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	AEADKeySize = 32

	SchemeAES256GCM         = "aes256gcm"
	SchemeXChaCha20Poly1305 = "xchacha20poly1305"
)

func newAEAD(scheme string, rawKey []byte) (cipher.AEAD, error) {
	if len(rawKey) != AEADKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(rawKey), AEADKeySize)
	}

	switch scheme {
	case SchemeAES256GCM:
		block, err := aes.NewCipher(rawKey)
		if err != nil {
			return nil, fmt.Errorf("creating cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("creating GCM: %w", err)
		}
		return gcm, nil
	case SchemeXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(rawKey)
		if err != nil {
			return nil, fmt.Errorf("creating XChaCha20-Poly1305: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("unsupported AEAD scheme %q", scheme)
	}
}

// SupportedScheme reports whether scheme names an AEAD this package can build.
func SupportedScheme(scheme string) bool {
	return scheme == SchemeAES256GCM || scheme == SchemeXChaCha20Poly1305
}

// SealAEAD encrypts plainText under rawKey with a fresh random nonce. The
// nonce is returned separately from the ciphertext.
func SealAEAD(scheme string, plainText, rawKey, aad []byte) (nonce, cipherText []byte, err error) {
	aead, err := newAEAD(scheme, rawKey)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}

	return nonce, aead.Seal(nil, nonce, plainText, aad), nil
}

func OpenAEAD(scheme string, nonce, cipherText, rawKey, aad []byte) ([]byte, error) {
	aead, err := newAEAD(scheme, rawKey)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("invalid nonce size: got %d, want %d", len(nonce), aead.NonceSize())
	}

	plainText, err := aead.Open(nil, nonce, cipherText, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypting ciphertext: %w", err)
	}
	return plainText, nil
}

func NewAEADKey() ([]byte, error) {
	rawKey := make([]byte, AEADKeySize)
	if _, err := rand.Read(rawKey); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return rawKey, nil
}
