package sessioncache

import "errors"

var (
	// ErrUnavailable is returned when no session key can be produced at all.
	ErrUnavailable = errors.New("session key unavailable")
	// ErrInvalidClientID indicates a client cookie that fails verification.
	ErrInvalidClientID = errors.New("invalid client id")
)
