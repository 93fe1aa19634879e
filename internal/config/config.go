// Package config loads masterkeep settings from defaults, an optional JSON
// file, MASTERKEEP_* environment variables and command-line overrides.
package config

import (
	"time"

	"github.com/jmcleod/masterkeep/crypto"
)

const EnvPrefix = "MASTERKEEP_"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendBBolt    = "bbolt"
	BackendPostgres = "postgres"
)

type Config struct {
	Storage      Storage      `envPrefix:"STORAGE_" json:"storage"`
	Crypto       Crypto       `envPrefix:"CRYPTO_" json:"crypto"`
	TempKey      TempKey      `envPrefix:"TEMPKEY_" json:"tempkey"`
	SessionCache SessionCache `envPrefix:"SESSION_CACHE_" json:"session_cache"`
	Mail         Mail         `envPrefix:"MAIL_" json:"mail"`
	Log          Log          `envPrefix:"LOG_" json:"log"`

	// JSONFilePath is read from MASTERKEEP_CONFIG or --config.
	JSONFilePath string `env:"CONFIG" json:"-"`
}

type Storage struct {
	Backend string `env:"BACKEND" json:"backend"`
	// Path is the bbolt database file.
	Path string `env:"PATH" json:"path"`
	// DSN is the PostgreSQL connection string.
	DSN string `env:"DSN" json:"dsn"`
}

type Crypto struct {
	KDFProfile string `env:"KDF_PROFILE" json:"kdf_profile"`
	Scheme     string `env:"SCHEME" json:"scheme"`
}

type TempKey struct {
	MaxAge Duration `env:"MAX_AGE" json:"max_age"`
}

type SessionCache struct {
	Dir    string   `env:"DIR" json:"dir"`
	TTL    Duration `env:"TTL" json:"ttl"`
	Secret string   `env:"SECRET" json:"secret"`
}

type Mail struct {
	WebhookURL string   `env:"WEBHOOK_URL" json:"webhook_url"`
	Token      string   `env:"TOKEN" json:"token"`
	Timeout    Duration `env:"TIMEOUT" json:"timeout"`
}

type Log struct {
	Level string `env:"LEVEL" json:"level"`
}

func Defaults() *Config {
	return &Config{
		Storage: Storage{
			Backend: BackendBBolt,
			Path:    "masterkeep.db",
		},
		Crypto: Crypto{
			KDFProfile: crypto.KDFProfileModerate,
			Scheme:     crypto.SchemeAES256GCM,
		},
		TempKey: TempKey{
			MaxAge: Duration(14400 * time.Second),
		},
		SessionCache: SessionCache{
			TTL: Duration(24 * time.Hour),
		},
		Mail: Mail{
			Timeout: Duration(10 * time.Second),
		},
		Log: Log{
			Level: "info",
		},
	}
}

// KDFParams resolves the configured profile.
func (c *Config) KDFParams() (crypto.KDFParams, error) {
	return crypto.KDFProfile(c.Crypto.KDFProfile)
}

// Load merges, in increasing priority, the defaults, the JSON file, the
// environment and overrides, then validates the result. overrides may be
// nil.
func Load(overrides *Config) (*Config, error) {
	return newConfigBuilder().
		withDefaults().
		withEnv().
		withOverrides(overrides).
		withJSON().
		build()
}
