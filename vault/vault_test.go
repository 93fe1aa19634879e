package vault

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams(t *testing.T) crypto.KDFParams {
	t.Helper()
	p, err := crypto.KDFProfile(crypto.KDFProfileInteractive)
	require.NoError(t, err)
	return p
}

func sealTestVault(t *testing.T, secret string, plaintext []byte, opts ...Option) *Vault {
	t.Helper()
	salt, err := crypto.NewSalt()
	require.NoError(t, err)
	v, err := SealWith(secret, salt, plaintext, append([]Option{WithKDFParams(testParams(t))}, opts...)...)
	require.NoError(t, err)
	return v
}

func TestVault_RoundTrip(t *testing.T) {
	plaintexts := [][]byte{
		[]byte("master password"),
		{},
		make([]byte, 4096),
	}
	for _, pt := range plaintexts {
		v := sealTestVault(t, "login password", pt)
		got, err := v.OpenWith("login password")
		require.NoError(t, err)
		assert.Equal(t, len(pt), len(got))
		assert.Equal(t, string(pt), string(got))
	}
}

func TestVault_WrongSecret(t *testing.T) {
	v := sealTestVault(t, "login password", []byte("master password"))

	got, err := v.OpenWith("login passwore")
	require.ErrorIs(t, err, ErrUnwrappable)
	assert.Nil(t, got)
}

func TestVault_Tamper(t *testing.T) {
	v := sealTestVault(t, "login password", []byte("master password"))

	t.Run("Ciphertext", func(t *testing.T) {
		tampered := *v
		tampered.Envelope = v.Envelope.Clone()
		tampered.Envelope.Ciphertext[0] ^= 0x80
		_, err := tampered.OpenWith("login password")
		assert.ErrorIs(t, err, ErrUnwrappable)
	})

	t.Run("Tag", func(t *testing.T) {
		tampered := *v
		tampered.Envelope = v.Envelope.Clone()
		tampered.Envelope.Ciphertext[len(tampered.Envelope.Ciphertext)-1] ^= 0x01
		_, err := tampered.OpenWith("login password")
		assert.ErrorIs(t, err, ErrUnwrappable)
	})

	t.Run("Salt", func(t *testing.T) {
		tampered := *v
		tampered.Salt = append([]byte(nil), v.Salt...)
		tampered.Salt[0] ^= 0x01
		_, err := tampered.OpenWith("login password")
		assert.ErrorIs(t, err, ErrUnwrappable)
	})

	t.Run("WeakenedParams", func(t *testing.T) {
		tampered := *v
		tampered.KDF.MemoryKiB = 8
		_, err := tampered.OpenWith("login password")
		assert.ErrorIs(t, err, ErrUnwrappable)
	})

	t.Run("MissingEnvelope", func(t *testing.T) {
		tampered := *v
		tampered.Envelope = nil
		_, err := tampered.OpenWith("login password")
		assert.ErrorIs(t, err, ErrUnwrappable)
	})
}

func TestVault_AAD(t *testing.T) {
	v := sealTestVault(t, "pw", []byte("secret"), WithAAD([]byte("user-1")))

	_, err := v.OpenWith("pw", WithAAD([]byte("user-2")))
	assert.ErrorIs(t, err, ErrUnwrappable)

	got, err := v.OpenWith("pw", WithAAD([]byte("user-1")))
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), got)
}

func TestVault_SealWith(t *testing.T) {
	t.Run("ShortSalt", func(t *testing.T) {
		_, err := SealWith("pw", []byte("short"), []byte("x"), WithKDFParams(testParams(t)))
		assert.ErrorIs(t, err, crypto.ErrSaltTooShort)
	})

	t.Run("CreatedAt", func(t *testing.T) {
		at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		v := sealTestVault(t, "pw", []byte("x"), WithCreatedAt(at))
		assert.Equal(t, at, v.CreatedAt)
	})

	t.Run("XChaCha", func(t *testing.T) {
		v := sealTestVault(t, "pw", []byte("x"), WithScheme(crypto.SchemeXChaCha20Poly1305))
		assert.Equal(t, crypto.SchemeXChaCha20Poly1305, v.Envelope.Scheme)
		got, err := v.OpenWith("pw")
		require.NoError(t, err)
		assert.Equal(t, []byte("x"), got)
	})

	t.Run("ParamsTravelWithVault", func(t *testing.T) {
		v := sealTestVault(t, "pw", []byte("x"))
		assert.Equal(t, testParams(t), v.KDF)
		assert.True(t, v.NeedsRehash(crypto.DefaultKDFParams()))
		assert.False(t, v.NeedsRehash(testParams(t)))
	})
}

func TestVault_MarshalUnmarshal(t *testing.T) {
	v := sealTestVault(t, "pw", []byte("master"))
	data, err := v.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	got, err := decoded.OpenWith("pw")
	require.NoError(t, err)
	assert.Equal(t, []byte("master"), got)

	t.Run("Malformed", func(t *testing.T) {
		for _, data := range [][]byte{
			nil,
			[]byte("not json"),
			[]byte(`{"ver":1}`),
			[]byte(`{"ver":9,"envelope":{}}`),
		} {
			_, err := Unmarshal(data)
			assert.ErrorIs(t, err, ErrUnwrappable, "%s", data)
		}
	})

	t.Run("NoPlaintextInBlob", func(t *testing.T) {
		var raw map[string]any
		require.NoError(t, json.Unmarshal(data, &raw))
		assert.NotContains(t, string(data), "master")
	})
}
