package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/jmcleod/masterkeep/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	ctx := t.Context()
	r := NewRepository()

	_, err := r.GetConfig(ctx, storage.ConfigMasterPasswordHash)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, r.SetConfig(ctx, storage.ConfigMasterPasswordHash, "hash"))
	v, err := r.GetConfig(ctx, storage.ConfigMasterPasswordHash)
	require.NoError(t, err)
	assert.Equal(t, "hash", v)
}

func TestUsers(t *testing.T) {
	ctx := t.Context()
	r := NewRepository()

	u := storage.User{ID: "u1", Login: "bob", GroupID: "g1", WrappedMasterKey: []byte("wrap")}
	require.NoError(t, r.CreateUser(ctx, u))
	require.ErrorIs(t, r.CreateUser(ctx, u), storage.ErrAlreadyExists)
	require.NoError(t, r.CreateUser(ctx, storage.User{ID: "u2", Login: "alice", GroupID: "g1"}))
	require.NoError(t, r.CreateUser(ctx, storage.User{ID: "u3", Login: "carol", GroupID: "g2"}))

	got, err := r.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	t.Run("ReturnsCopies", func(t *testing.T) {
		got.WrappedMasterKey[0] = 'X'
		again, err := r.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []byte("wrap"), again.WrappedMasterKey)
	})

	t.Run("Update", func(t *testing.T) {
		got.WrappedMasterKeyAt = time.Unix(100, 0)
		require.NoError(t, r.UpdateUser(ctx, got))
		again, err := r.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, time.Unix(100, 0), again.WrappedMasterKeyAt)

		err = r.UpdateUser(ctx, storage.User{ID: "missing"})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		g1, err := r.ListUsers(ctx, "g1")
		require.NoError(t, err)
		require.Len(t, g1, 2)
		assert.Equal(t, "alice", g1[0].Login)
		assert.Equal(t, "bob", g1[1].Login)

		all, err := r.ListUsers(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestUpdate_Rollback(t *testing.T) {
	ctx := t.Context()
	r := NewRepository()
	require.NoError(t, r.SetConfig(ctx, "a", "1"))
	require.NoError(t, r.CreateUser(ctx, storage.User{ID: "u1", Login: "bob"}))

	boom := errors.New("boom")
	err := r.Update(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.SetConfig("a", "2"))
		require.NoError(t, tx.SetConfig("b", "2"))
		require.NoError(t, tx.UpdateUser(storage.User{ID: "u1", Login: "robert"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	v, err := r.GetConfig(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	_, err = r.GetConfig(ctx, "b")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	u, err := r.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Login)

	err = r.Update(ctx, func(tx storage.Tx) error {
		return tx.UpdateUser(storage.User{ID: "missing"})
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, r.Update(ctx, func(tx storage.Tx) error {
		return tx.SetConfig("a", "3")
	}))
	v, err = r.GetConfig(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
}

func TestUpdate_SetUserWrap(t *testing.T) {
	ctx := t.Context()
	r := NewRepository()
	require.NoError(t, r.CreateUser(ctx, storage.User{ID: "u1", Login: "bob", LoginHash: "h1"}))

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	wrap := []byte("wrap")
	require.NoError(t, r.Update(ctx, func(tx storage.Tx) error {
		return tx.SetUserWrap("u1", wrap, at)
	}))
	wrap[0] = 'X'

	u, err := r.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []byte("wrap"), u.WrappedMasterKey)
	assert.True(t, u.WrappedMasterKeyAt.Equal(at))
	assert.Equal(t, "bob", u.Login)
	assert.Equal(t, "h1", u.LoginHash)

	err = r.Update(ctx, func(tx storage.Tx) error {
		return tx.SetUserWrap("missing", wrap, at)
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReencryptAll(t *testing.T) {
	ctx := t.Context()
	r := NewRepository()
	require.NoError(t, r.PutCredential(ctx, "c1", []byte("one")))
	require.NoError(t, r.PutCredential(ctx, "c2", []byte("two")))

	t.Run("AllOrNothing", func(t *testing.T) {
		calls := 0
		_, err := r.ReencryptAll(ctx, func(sealed []byte) ([]byte, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("cannot open")
			}
			return append([]byte("new-"), sealed...), nil
		})
		require.Error(t, err)

		c1, err := r.GetCredential(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), c1)
		c2, err := r.GetCredential(ctx, "c2")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), c2)
	})

	t.Run("Success", func(t *testing.T) {
		n, err := r.ReencryptAll(ctx, func(sealed []byte) ([]byte, error) {
			return append([]byte("new-"), sealed...), nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		c1, err := r.GetCredential(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []byte("new-one"), c1)
	})

	_, err := r.GetCredential(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
