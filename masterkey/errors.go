package masterkey

import "errors"

var (
	// ErrWrongMasterPassword indicates the supplied master password does not
	// match the stored hash. Callers may retry.
	ErrWrongMasterPassword = errors.New("wrong master password")
	// ErrRotationAborted is returned when ChangeMasterPassword stops before
	// committing. The previous master password stays authoritative.
	ErrRotationAborted = errors.New("master password rotation aborted")
	// ErrUserUpdateRequired indicates the user's wrapped copy predates the
	// last rotation and must be re-created.
	ErrUserUpdateRequired = errors.New("user master key update required")
	// ErrNoWrappedKey indicates the user has no wrapped copy yet.
	ErrNoWrappedKey = errors.New("no wrapped master key")
	// ErrNotConfigured indicates no master password hash has been stored.
	ErrNotConfigured = errors.New("master password not configured")
	// ErrAlreadyConfigured is returned by Bootstrap when a master password
	// already exists.
	ErrAlreadyConfigured = errors.New("master password already configured")
	// ErrStaleKey indicates a Key loaded before the most recent rotation.
	ErrStaleKey = errors.New("stale master key")
	// ErrExpired is the common cause of every expiry failure.
	ErrExpired = errors.New("expired")
)
