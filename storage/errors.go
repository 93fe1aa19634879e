package storage

import "errors"

var (
	// ErrNotFound is returned when a config parameter, user or credential
	// does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a record whose id is taken.
	ErrAlreadyExists = errors.New("already exists")
)
