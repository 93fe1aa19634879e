package bbolt

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmcleod/masterkeep/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStoreFromFile(filepath.Join(t.TempDir(), "masterkeep.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBBoltStorage(t *testing.T) {
	ctx := t.Context()
	s := newTestStore(t)

	t.Run("Config", func(t *testing.T) {
		_, err := s.GetConfig(ctx, storage.ConfigTempMasterKey)
		require.ErrorIs(t, err, storage.ErrNotFound)

		require.NoError(t, s.SetConfig(ctx, storage.ConfigTempMasterKey, "{}"))
		v, err := s.GetConfig(ctx, storage.ConfigTempMasterKey)
		require.NoError(t, err)
		assert.Equal(t, "{}", v)
	})

	t.Run("Users", func(t *testing.T) {
		at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		u := storage.User{
			ID:                 "u1",
			Login:              "bob",
			Email:              "bob@example.com",
			GroupID:            "ops",
			LoginHash:          "5f4dcc3b5aa765d61d8327deb882cf99",
			MigrationRequired:  true,
			WrappedMasterKey:   []byte(`{"ver":1}`),
			WrappedMasterKeyAt: at,
		}
		require.NoError(t, s.CreateUser(ctx, u))
		require.ErrorIs(t, s.CreateUser(ctx, u), storage.ErrAlreadyExists)
		require.NoError(t, s.CreateUser(ctx, storage.User{ID: "u2", Login: "alice", GroupID: "dev"}))

		got, err := s.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, u.Login, got.Login)
		assert.Equal(t, u.WrappedMasterKey, got.WrappedMasterKey)
		assert.True(t, got.WrappedMasterKeyAt.Equal(at))
		assert.True(t, got.MigrationRequired)

		got.MigrationRequired = false
		require.NoError(t, s.UpdateUser(ctx, got))
		got, err = s.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, got.MigrationRequired)

		require.ErrorIs(t, s.UpdateUser(ctx, storage.User{ID: "nope"}), storage.ErrNotFound)
		_, err = s.GetUser(ctx, "nope")
		require.ErrorIs(t, err, storage.ErrNotFound)

		ops, err := s.ListUsers(ctx, "ops")
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, "u1", ops[0].ID)

		all, err := s.ListUsers(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "alice", all[0].Login)
	})

	t.Run("SetUserWrap", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
			return tx.SetUserWrap("u1", []byte(`{"ver":2}`), at)
		}))
		got, err := s.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"ver":2}`), got.WrappedMasterKey)
		assert.True(t, got.WrappedMasterKeyAt.Equal(at))
		assert.Equal(t, "bob@example.com", got.Email)
		assert.Equal(t, "5f4dcc3b5aa765d61d8327deb882cf99", got.LoginHash)

		err = s.Update(ctx, func(tx storage.Tx) error {
			return tx.SetUserWrap("nope", nil, at)
		})
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UpdateRollback", func(t *testing.T) {
		require.NoError(t, s.SetConfig(ctx, storage.ConfigMasterPasswordHash, "old"))
		boom := errors.New("boom")
		err := s.Update(ctx, func(tx storage.Tx) error {
			if err := tx.SetConfig(storage.ConfigMasterPasswordHash, "new"); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		v, err := s.GetConfig(ctx, storage.ConfigMasterPasswordHash)
		require.NoError(t, err)
		assert.Equal(t, "old", v)

		require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
			if err := tx.SetConfig(storage.ConfigMasterPasswordHash, "new"); err != nil {
				return err
			}
			return tx.SetConfig(storage.ConfigMasterPasswordTime, "42")
		}))
		v, err = s.GetConfig(ctx, storage.ConfigMasterPasswordTime)
		require.NoError(t, err)
		assert.Equal(t, "42", v)
	})

	t.Run("Credentials", func(t *testing.T) {
		require.NoError(t, s.PutCredential(ctx, "c1", []byte("one")))
		require.NoError(t, s.PutCredential(ctx, "c2", []byte("two")))

		_, err := s.ReencryptAll(ctx, func(sealed []byte) ([]byte, error) {
			if string(sealed) == "two" {
				return nil, errors.New("cannot open")
			}
			return []byte("x"), nil
		})
		require.Error(t, err)
		c1, err := s.GetCredential(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), c1)

		n, err := s.ReencryptAll(ctx, func(sealed []byte) ([]byte, error) {
			return append([]byte("new-"), sealed...), nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		c2, err := s.GetCredential(ctx, "c2")
		require.NoError(t, err)
		assert.Equal(t, []byte("new-two"), c2)

		_, err = s.GetCredential(ctx, "c3")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestBBoltStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := NewStoreFromFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.SetConfig(t.Context(), "k", "v"))
	require.NoError(t, s.Close())

	s, err = NewStoreFromFile(path, nil)
	require.NoError(t, err)
	defer s.Close()
	v, err := s.GetConfig(t.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
