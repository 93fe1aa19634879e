package crypto

import "errors"

var (
	// ErrAuthFailure is returned for any failure to open an envelope: wrong
	// key, tampered ciphertext, AAD mismatch or an unsupported format.
	ErrAuthFailure = errors.New("authentication failed")

	ErrSaltTooShort     = errors.New("salt too short")
	ErrInvalidKDFParams = errors.New("invalid kdf parameters")
	ErrMalformedHash    = errors.New("malformed password hash")
)
