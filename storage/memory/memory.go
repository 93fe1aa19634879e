// Package memory provides a thread-safe in-memory implementation of the
// storage contracts.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jmcleod/masterkeep/storage"
)

// Repository is a thread-safe in-memory storage.Store and
// storage.CredentialStore. Suitable for testing, demos, and single-process
// use cases.
type Repository struct {
	mu          sync.RWMutex
	config      map[string]string
	users       map[string]storage.User
	credentials map[string][]byte
}

var (
	_ storage.Store           = (*Repository)(nil)
	_ storage.CredentialStore = (*Repository)(nil)
)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{
		config:      make(map[string]string),
		users:       make(map[string]storage.User),
		credentials: make(map[string][]byte),
	}
}

func (r *Repository) Close() error { return nil }

func (r *Repository) GetConfig(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.config[name]
	if !ok {
		return "", fmt.Errorf("config %s: %w", name, storage.ErrNotFound)
	}
	return v, nil
}

func (r *Repository) SetConfig(ctx context.Context, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config[name] = value
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (storage.User, error) {
	if err := ctx.Err(); err != nil {
		return storage.User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return storage.User{}, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	return u.Clone(), nil
}

func (r *Repository) CreateUser(ctx context.Context, u storage.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, storage.ErrAlreadyExists)
	}
	r.users[u.ID] = u.Clone()
	return nil
}

func (r *Repository) UpdateUser(ctx context.Context, u storage.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateUserLocked(u)
}

func (r *Repository) updateUserLocked(u storage.User) error {
	if _, ok := r.users[u.ID]; !ok {
		return fmt.Errorf("user %s: %w", u.ID, storage.ErrNotFound)
	}
	r.users[u.ID] = u.Clone()
	return nil
}

func (r *Repository) ListUsers(ctx context.Context, groupID string) ([]storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var users []storage.User
	for _, u := range r.users {
		if groupID == "" || u.GroupID == groupID {
			users = append(users, u.Clone())
		}
	}
	slices.SortFunc(users, func(a, b storage.User) int {
		return strings.Compare(a.Login, b.Login)
	})
	return users, nil
}

// Update executes fn within a transaction. On error, all writes are rolled back.
func (r *Repository) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	configSnapshot := maps.Clone(r.config)
	usersSnapshot := make(map[string]storage.User, len(r.users))
	for id, u := range r.users {
		usersSnapshot[id] = u.Clone()
	}

	if err := fn(&memoryTx{repo: r}); err != nil {
		r.config = configSnapshot
		r.users = usersSnapshot
		return err
	}
	return nil
}

type memoryTx struct {
	repo *Repository
}

func (tx *memoryTx) SetConfig(name, value string) error {
	tx.repo.config[name] = value
	return nil
}

func (tx *memoryTx) UpdateUser(u storage.User) error {
	return tx.repo.updateUserLocked(u)
}

func (tx *memoryTx) SetUserWrap(userID string, wrapped []byte, at time.Time) error {
	u, ok := tx.repo.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, storage.ErrNotFound)
	}
	u.WrappedMasterKey = append([]byte(nil), wrapped...)
	u.WrappedMasterKeyAt = at
	tx.repo.users[userID] = u
	return nil
}

func (r *Repository) PutCredential(ctx context.Context, id string, sealed []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials[id] = append([]byte(nil), sealed...)
	return nil
}

func (r *Repository) GetCredential(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sealed, ok := r.credentials[id]
	if !ok {
		return nil, fmt.Errorf("credential %s: %w", id, storage.ErrNotFound)
	}
	return append([]byte(nil), sealed...), nil
}

// ReencryptAll rewrites every credential. Nothing is changed unless fn
// succeeds for all of them.
func (r *Repository) ReencryptAll(ctx context.Context, fn func(sealed []byte) ([]byte, error)) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string][]byte, len(r.credentials))
	for id, sealed := range r.credentials {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		out, err := fn(append([]byte(nil), sealed...))
		if err != nil {
			return 0, fmt.Errorf("re-encrypting credential %s: %w", id, err)
		}
		next[id] = out
	}
	r.credentials = next
	return len(next), nil
}
