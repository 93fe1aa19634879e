package config

import (
	"fmt"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/rs/zerolog"
)

// MinSessionSecretLen is the minimum length of the session cache secret.
const MinSessionSecretLen = 32

// Validate checks that the merged configuration is usable.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendBBolt:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: bbolt backend requires a path", ErrInvalidStorageConfig)
		}
	case BackendPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: postgres backend requires a dsn", ErrInvalidStorageConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidStorageConfig, c.Storage.Backend)
	}

	if _, err := c.KDFParams(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCryptoConfig, err)
	}
	if c.Crypto.Scheme != crypto.SchemeAES256GCM && c.Crypto.Scheme != crypto.SchemeXChaCha20Poly1305 {
		return fmt.Errorf("%w: unknown scheme %q", ErrInvalidCryptoConfig, c.Crypto.Scheme)
	}

	if c.TempKey.MaxAge.Std() <= 0 {
		return fmt.Errorf("%w: max age must be positive", ErrInvalidTempKeyConfig)
	}

	if c.SessionCache.Dir != "" {
		if c.SessionCache.TTL.Std() <= 0 {
			return fmt.Errorf("%w: ttl must be positive", ErrInvalidSessionCacheConfig)
		}
		if len(c.SessionCache.Secret) < MinSessionSecretLen {
			return fmt.Errorf("%w: secret must be at least %d bytes", ErrInvalidSessionCacheConfig, MinSessionSecretLen)
		}
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLogConfig, err)
	}
	return nil
}
