// Package storage defines the persistence contracts the master-key
// subsystem depends on: a named configuration store, a per-user record
// store and a credential store that can be re-encrypted atomically.
package storage

import (
	"context"
	"time"
)

// Configuration parameter names.
const (
	ConfigMasterPasswordHash = "masterPwd"
	ConfigMasterPasswordTime = "lastupdatempass"
	ConfigTempMasterKey      = "tempmasterkey.token"
)

// User is the subset of a user record the subsystem reads and writes.
type User struct {
	ID      string `json:"id"`
	Login   string `json:"login"`
	Email   string `json:"email"`
	GroupID string `json:"group_id"`

	// Login credential, possibly in a legacy format when MigrationRequired
	// is set.
	LoginHash         string `json:"login_hash"`
	HashSalt          string `json:"hash_salt,omitempty"`
	MigrationRequired bool   `json:"migration_required"`

	// WrappedMasterKey is a marshaled vault sealing the master password
	// under the user's login password.
	WrappedMasterKey   []byte    `json:"wrapped_master_key,omitempty"`
	WrappedMasterKeyAt time.Time `json:"wrapped_master_key_at"`
}

// Clone returns a deep copy of u.
func (u User) Clone() User {
	if u.WrappedMasterKey != nil {
		u.WrappedMasterKey = append([]byte(nil), u.WrappedMasterKey...)
	}
	return u
}

type ConfigStore interface {
	GetConfig(ctx context.Context, name string) (string, error)
	SetConfig(ctx context.Context, name, value string) error
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, u User) error
	UpdateUser(ctx context.Context, u User) error
	// ListUsers returns the users of groupID, or every user when groupID
	// is empty, ordered by login.
	ListUsers(ctx context.Context, groupID string) ([]User, error)
}

// Tx is the write side of an atomic update.
type Tx interface {
	SetConfig(name, value string) error
	UpdateUser(u User) error
	// SetUserWrap replaces the wrapped master key of userID and leaves the
	// rest of the record as currently stored.
	SetUserWrap(userID string, wrapped []byte, at time.Time) error
}

// Store is the configuration and user store. Update applies every write
// made through tx, or none of them if fn returns an error.
type Store interface {
	ConfigStore
	UserStore
	Update(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// CredentialStore holds sealed account secrets.
type CredentialStore interface {
	PutCredential(ctx context.Context, id string, sealed []byte) error
	GetCredential(ctx context.Context, id string) ([]byte, error)
	// ReencryptAll replaces every credential with fn(credential) in a single
	// transaction. If fn fails for any credential, none are changed.
	ReencryptAll(ctx context.Context, fn func(sealed []byte) ([]byte, error)) (int, error)
}
