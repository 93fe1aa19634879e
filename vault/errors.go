package vault

import "errors"

var (
	// ErrUnwrappable is the single failure reported by OpenWith. Wrong
	// secret, tampered data and malformed metadata are indistinguishable.
	ErrUnwrappable = errors.New("vault cannot be unwrapped")
)
