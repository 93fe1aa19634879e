// Package bbolt provides a BBolt-backed storage.Store.
package bbolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jmcleod/masterkeep/storage"
	"go.etcd.io/bbolt"
)

var (
	bucketConfig      = []byte("config")
	bucketUsers       = []byte("users")
	bucketCredentials = []byte("credentials")
)

// Store implements storage.Store and storage.CredentialStore backed by a
// BBolt database. Every Update runs in a single bbolt read-write
// transaction.
type Store struct {
	db *bbolt.DB
}

var (
	_ storage.Store           = (*Store)(nil)
	_ storage.CredentialStore = (*Store)(nil)
)

// NewStore returns a Store backed by the given BBolt database, creating the
// buckets it needs.
func NewStore(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketConfig, bucketUsers, bucketCredentials} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewStoreFromFile opens a BBolt database at the given path and returns a
// new Store.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetConfig(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketConfig).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("config %s: %w", name, storage.ErrNotFound)
		}
		value = string(data)
		return nil
	})
	return value, err
}

func (s *Store) SetConfig(ctx context.Context, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return (&boltTx{tx: tx}).SetConfig(name, value)
	})
}

func getUser(b *bbolt.Bucket, id string) (storage.User, error) {
	data := b.Get([]byte(id))
	if data == nil {
		return storage.User{}, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	var u storage.User
	if err := json.Unmarshal(data, &u); err != nil {
		return storage.User{}, fmt.Errorf("decoding user %s: %w", id, err)
	}
	return u, nil
}

func putUser(b *bbolt.Bucket, u storage.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.Put([]byte(u.ID), data)
}

func (s *Store) GetUser(ctx context.Context, id string) (storage.User, error) {
	if err := ctx.Err(); err != nil {
		return storage.User{}, err
	}
	var u storage.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		u, err = getUser(tx.Bucket(bucketUsers), id)
		return err
	})
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u storage.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(u.ID)) != nil {
			return fmt.Errorf("user %s: %w", u.ID, storage.ErrAlreadyExists)
		}
		return putUser(b, u)
	})
}

func (s *Store) UpdateUser(ctx context.Context, u storage.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return (&boltTx{tx: tx}).UpdateUser(u)
	})
}

func (s *Store) ListUsers(ctx context.Context, groupID string) ([]storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var users []storage.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var u storage.User
			if err := json.Unmarshal(v, &u); err != nil {
				return fmt.Errorf("decoding user %s: %w", k, err)
			}
			if groupID == "" || u.GroupID == groupID {
				users = append(users, u)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(users, func(a, b storage.User) int {
		return strings.Compare(a.Login, b.Login)
	})
	return users, nil
}

type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) SetConfig(name, value string) error {
	return t.tx.Bucket(bucketConfig).Put([]byte(name), []byte(value))
}

func (t *boltTx) UpdateUser(u storage.User) error {
	b := t.tx.Bucket(bucketUsers)
	if b.Get([]byte(u.ID)) == nil {
		return fmt.Errorf("user %s: %w", u.ID, storage.ErrNotFound)
	}
	return putUser(b, u)
}

func (t *boltTx) SetUserWrap(userID string, wrapped []byte, at time.Time) error {
	b := t.tx.Bucket(bucketUsers)
	u, err := getUser(b, userID)
	if err != nil {
		return err
	}
	u.WrappedMasterKey = wrapped
	u.WrappedMasterKeyAt = at
	return putUser(b, u)
}

// Update runs fn in a single bbolt transaction; an error from fn rolls back
// every write.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

func (s *Store) PutCredential(ctx context.Context, id string, sealed []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCredentials).Put([]byte(id), sealed)
	})
}

func (s *Store) GetCredential(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sealed []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCredentials).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("credential %s: %w", id, storage.ErrNotFound)
		}
		sealed = bytes.Clone(data)
		return nil
	})
	return sealed, err
}

func (s *Store) ReencryptAll(ctx context.Context, fn func(sealed []byte) ([]byte, error)) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		next := make(map[string][]byte)
		err := b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := fn(bytes.Clone(v))
			if err != nil {
				return fmt.Errorf("re-encrypting credential %s: %w", k, err)
			}
			next[string(k)] = out
			return nil
		})
		if err != nil {
			return err
		}
		// Keys cannot be written while ForEach iterates the bucket.
		for id, sealed := range next {
			if err := b.Put([]byte(id), sealed); err != nil {
				return err
			}
		}
		n = len(next)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
