package sessioncache

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmcleod/masterkeep/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = bytes.Repeat([]byte{0x42}, MinSecretLen)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(t *testing.T, opts ...Option) (*Cache, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c, err := New(t.TempDir(), testSecret, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, clock
}

var fp = Fingerprint{ClientID: "client-1", RemoteAddr: "10.0.0.1", UserAgent: "Mozilla/5.0"}

func TestNew(t *testing.T) {
	_, err := New(t.TempDir(), []byte("short"))
	assert.Error(t, err)
}

func TestGetKey_Stable(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := t.Context()

	k1, err := c.GetKey(ctx, fp)
	require.NoError(t, err)
	assert.Len(t, k1, 32)

	k2, err := c.GetKey(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	info, err := os.Stat(c.path(fp.ClientID))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(c.path(fp.ClientID))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(data, k1))

	_, err = c.GetKey(ctx, Fingerprint{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGetKey_FingerprintChange(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := t.Context()

	k1, err := c.GetKey(ctx, fp)
	require.NoError(t, err)

	moved := fp
	moved.RemoteAddr = "192.168.1.9"
	k2, err := c.GetKey(ctx, moved)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	other := fp
	other.ClientID = "client-2"
	k3, err := c.GetKey(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, k2, k3)
}

func TestGetKey_SelfHeals(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := t.Context()
	path := c.path(fp.ClientID)

	k1, err := c.GetKey(ctx, fp)
	require.NoError(t, err)

	tests := []struct {
		name    string
		corrupt func(t *testing.T)
	}{
		{"Garbage", func(t *testing.T) {
			require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))
		}},
		{"Empty", func(t *testing.T) {
			require.NoError(t, os.WriteFile(path, nil, 0o600))
		}},
		{"FlippedCiphertext", func(t *testing.T) {
			e := readEntry(t, path)
			e.Envelope.Ciphertext[0] ^= 0xff
			writeEntry(t, path, e)
		}},
		{"RewrittenTimestamp", func(t *testing.T) {
			e := readEntry(t, path)
			e.WrittenAt = e.WrittenAt.Add(time.Hour)
			writeEntry(t, path, e)
		}},
	}
	prev := k1
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.corrupt(t)
			k, err := c.GetKey(ctx, fp)
			require.NoError(t, err)
			assert.NotEqual(t, prev, k)

			again, err := c.GetKey(ctx, fp)
			require.NoError(t, err)
			assert.Equal(t, k, again, "rebuilt entry must be persisted")
			prev = k
		})
	}
}

func TestGetKey_Expiry(t *testing.T) {
	c, clock := newTestCache(t, WithTTL(time.Hour))
	ctx := t.Context()

	k1, err := c.GetKey(ctx, fp)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	k2, err := c.GetKey(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	clock.Advance(time.Second)
	k3, err := c.GetKey(ctx, fp)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestGetKey_WriteFailure(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newTestCache(t, WithLogger(logger.New(&buf, "test", "debug")))

	require.NoError(t, os.Mkdir(c.path(fp.ClientID), 0o700))

	k, err := c.GetKey(t.Context(), fp)
	require.NoError(t, err)
	assert.Len(t, k, 32)
	assert.Contains(t, buf.String(), "persisting session cache entry")

	leftovers, err := filepath.Glob(filepath.Join(c.dir, ".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestGetKey_Concurrent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := t.Context()

	const n = 16
	keys := make([][]byte, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys[i], errs[i] = c.GetKey(ctx, fp)
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, keys[0], keys[i])
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := t.Context()

	k1, err := c.GetKey(ctx, fp)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(fp.ClientID))
	require.NoError(t, c.Invalidate(fp.ClientID))

	_, err = os.Stat(c.path(fp.ClientID))
	assert.True(t, os.IsNotExist(err))

	k2, err := c.GetKey(ctx, fp)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestSweep(t *testing.T) {
	c, clock := newTestCache(t, WithTTL(time.Hour))
	ctx := t.Context()

	old := fp
	_, err := c.GetKey(ctx, old)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	fresh := Fingerprint{ClientID: "client-2"}
	_, err = c.GetKey(ctx, fresh)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(c.dir, "junk"+entryExt), []byte("{"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(c.dir, "README"), []byte("keep"), 0o600))

	clock.Advance(31 * time.Minute)
	removed, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = os.Stat(c.path(old.ClientID))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(c.path(fresh.ClientID))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(c.dir, "README"))
	assert.NoError(t, err)
}

func TestClientIDCookie(t *testing.T) {
	c, _ := newTestCache(t)

	id := NewClientID()
	value := c.SignClientID(id)
	last := byte('0')
	if value[len(value)-1] == '0' {
		last = '1'
	}

	got, err := c.VerifyClientID(value)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, bad := range []string{
		"",
		id,
		id + ".",
		"." + value,
		id + ".zz",
		NewClientID() + value[len(id):],
		value[:len(value)-1] + string(last),
	} {
		_, err := c.VerifyClientID(bad)
		assert.ErrorIs(t, err, ErrInvalidClientID, "%q", bad)
	}

	other, err := New(t.TempDir(), bytes.Repeat([]byte{0x24}, MinSecretLen))
	require.NoError(t, err)
	_, err = other.VerifyClientID(value)
	assert.ErrorIs(t, err, ErrInvalidClientID)
}

func readEntry(t *testing.T, path string) *entry {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	e, err := parseEntry(data)
	require.NoError(t, err)
	return e
}

func writeEntry(t *testing.T, path string, e *entry) {
	t.Helper()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}
