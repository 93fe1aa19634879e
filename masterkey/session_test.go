package masterkey

import (
	"testing"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionEnvelope(t *testing.T) {
	key, err := NewKey([]byte(masterPass), 42)
	require.NoError(t, err)
	sessionKey, err := crypto.NewKey()
	require.NoError(t, err)

	se, err := SealForSession(key, sessionKey)
	require.NoError(t, err)
	assert.Equal(t, int64(42), se.Version)

	got, err := OpenFromSession(se, sessionKey)
	require.NoError(t, err)
	assert.True(t, got.Equal(key))
	buf, err := got.Bytes()
	require.NoError(t, err)
	assert.Equal(t, masterPass, string(buf.Bytes()))
	buf.Destroy()

	t.Run("WrongSessionKey", func(t *testing.T) {
		other, err := crypto.NewKey()
		require.NoError(t, err)
		_, err = OpenFromSession(se, other)
		assert.ErrorIs(t, err, crypto.ErrAuthFailure)
	})

	t.Run("VersionBound", func(t *testing.T) {
		forged := *se
		forged.Version = 43
		_, err := OpenFromSession(&forged, sessionKey)
		assert.ErrorIs(t, err, crypto.ErrAuthFailure)
	})

	t.Run("Nil", func(t *testing.T) {
		_, err := OpenFromSession(nil, sessionKey)
		assert.ErrorIs(t, err, crypto.ErrAuthFailure)
	})
}
