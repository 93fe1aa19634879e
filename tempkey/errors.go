package tempkey

import (
	"fmt"

	"github.com/jmcleod/masterkeep/masterkey"
	"github.com/jmcleod/masterkeep/storage"
)

var (
	// ErrNotFound indicates no temporary master key has been issued.
	ErrNotFound = fmt.Errorf("temporary master key: %w", storage.ErrNotFound)
	// ErrExpired indicates the token outlived its max age.
	ErrExpired = fmt.Errorf("temporary master key %w", masterkey.ErrExpired)
	// ErrStale indicates the token was issued for a master password that has
	// since been rotated. It is reported as an expiry.
	ErrStale = fmt.Errorf("%w: master password rotated since issue", ErrExpired)
)
