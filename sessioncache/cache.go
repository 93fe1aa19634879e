// Package sessioncache keeps one random session key per client on disk,
// sealed under a key derived from the server secret and the request
// fingerprint. Entries that cannot be opened for any reason are replaced.
package sessioncache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/internal/logger"
	"github.com/jmcleod/masterkeep/internal/util"
)

const (
	DefaultTTL   = 24 * time.Hour
	MinSecretLen = 32

	entryVersion = 1
	entryExt     = ".key"
	entryLabel   = "masterkeep:session-cache:v1"
	tempPattern  = ".tmp-*"
)

// Fingerprint identifies the requesting client. All fields feed the sealing
// key, so a change in any of them yields a fresh session key.
type Fingerprint struct {
	ClientID   string
	RemoteAddr string
	UserAgent  string
}

func (fp Fingerprint) material() []byte {
	return crypto.AAD(entryLabel, fp.ClientID, fp.RemoteAddr, fp.UserAgent)
}

type entry struct {
	Ver       int              `json:"ver"`
	WrittenAt time.Time        `json:"written_at"`
	Salt      []byte           `json:"salt"`
	Envelope  *crypto.Envelope `json:"envelope"`
}

func (e *entry) aad(clientID string) []byte {
	return crypto.AAD(entryLabel, clientID, e.WrittenAt.Unix())
}

type Cache struct {
	dir    string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	log    *logger.Logger
	flight singleflight.Group
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Cache) {
		c.log = log
	}
}

// New returns a cache storing entries in dir, creating it if needed. secret
// is the server-side key material and must be at least MinSecretLen bytes.
func New(dir string, secret []byte, opts ...Option) (*Cache, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("session cache secret must be at least %d bytes, got %d", MinSecretLen, len(secret))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating session cache dir: %w", err)
	}
	c := &Cache{
		dir:    dir,
		secret: util.CopyBytes(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close wipes the server secret.
func (c *Cache) Close() {
	util.WipeBytes(c.secret)
}

func (c *Cache) path(clientID string) string {
	sum := sha256.Sum256([]byte(clientID))
	return filepath.Join(c.dir, util.HexEncode(sum[:])+entryExt)
}

func (c *Cache) sealingKey(fp Fingerprint, salt []byte) ([]byte, error) {
	return crypto.DeriveSubkey(c.secret, salt, fp.material())
}

// GetKey returns the session key for fp, creating and persisting a new one
// when there is no usable entry. Failing to persist is logged, not returned;
// the next call rebuilds the entry.
func (c *Cache) GetKey(ctx context.Context, fp Fingerprint) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fp.ClientID == "" {
		return nil, fmt.Errorf("%w: empty client id", ErrUnavailable)
	}

	path := c.path(fp.ClientID)
	if key, ok := c.load(path, fp); ok {
		return key, nil
	}

	sum := sha256.Sum256(fp.material())
	v, err, _ := c.flight.Do(path+":"+util.HexEncode(sum[:]), func() (any, error) {
		if key, ok := c.load(path, fp); ok {
			return key, nil
		}
		return c.rebuild(path, fp)
	})
	if err != nil {
		return nil, err
	}
	// Shared with every caller of the flight.
	return util.CopyBytes(v.([]byte)), nil
}

// load opens the entry at path. Any failure is a miss.
func (c *Cache) load(path string, fp Fingerprint) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.log.Warn().Err(err).Str("path", path).Msg("reading session cache entry")
		}
		return nil, false
	}
	e, err := parseEntry(data)
	if err != nil {
		c.log.Debug().Err(err).Str("path", path).Msg("discarding malformed session cache entry")
		return nil, false
	}
	if c.expired(e) {
		return nil, false
	}

	sk, err := c.sealingKey(fp, e.Salt)
	if err != nil {
		return nil, false
	}
	defer util.WipeBytes(sk)

	key, err := crypto.Open(sk, e.Envelope, e.aad(fp.ClientID))
	if err != nil || len(key) != crypto.KeySize {
		c.log.Debug().Str("path", path).Msg("session cache entry does not open for this client")
		return nil, false
	}
	return key, true
}

func (c *Cache) rebuild(path string, fp Fingerprint) ([]byte, error) {
	key, err := crypto.NewKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	sk, err := c.sealingKey(fp, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer util.WipeBytes(sk)

	e := &entry{
		Ver:       entryVersion,
		WrittenAt: c.now().UTC().Truncate(time.Second),
		Salt:      salt,
	}
	e.Envelope, err = crypto.Seal(sk, key, crypto.WithAAD(e.aad(fp.ClientID)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := c.writeAtomic(path, data); err != nil {
		c.log.Error().Err(err).Str("path", path).Msg("persisting session cache entry")
	}
	return key, nil
}

// writeAtomic replaces path with data via a synced temp file and rename.
func (c *Cache) writeAtomic(path string, data []byte) (err error) {
	f, err := os.CreateTemp(c.dir, tempPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c *Cache) expired(e *entry) bool {
	return c.now().Sub(e.WrittenAt) > c.ttl
}

func parseEntry(data []byte) (*entry, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Ver != entryVersion || e.Envelope == nil || len(e.Salt) == 0 {
		return nil, fmt.Errorf("unsupported session cache entry version %d", e.Ver)
	}
	return &e, nil
}

// Invalidate drops the entry for clientID, typically on logout.
func (c *Cache) Invalidate(clientID string) error {
	err := os.Remove(c.path(clientID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing session cache entry: %w", err)
	}
	return nil
}

// Sweep removes expired and malformed entries and returns how many were
// removed. Entries are never opened; only their timestamps are read.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("listing session cache dir: %w", err)
	}

	removed := 0
	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if de.IsDir() || !strings.HasSuffix(de.Name(), entryExt) {
			continue
		}
		path := filepath.Join(c.dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, fmt.Errorf("reading session cache entry: %w", err)
		}
		if e, err := parseEntry(data); err == nil && !c.expired(e) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("removing session cache entry: %w", err)
		}
		removed++
	}
	c.log.Info().Int("removed", removed).Msg("session cache swept")
	return removed, nil
}
