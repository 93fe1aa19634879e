package legacyauth

import (
	"fmt"

	"github.com/jmcleod/masterkeep/crypto"
)

// ErrAuthFailed is returned when no strategy accepts the candidate password.
var ErrAuthFailed = fmt.Errorf("login %w", crypto.ErrAuthFailure)
