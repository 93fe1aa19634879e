package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/internal/config"
	"github.com/jmcleod/masterkeep/legacyauth"
	"github.com/jmcleod/masterkeep/masterkey"
	"github.com/jmcleod/masterkeep/notify"
	"github.com/jmcleod/masterkeep/storage"
	bboltstorage "github.com/jmcleod/masterkeep/storage/bbolt"
	"github.com/jmcleod/masterkeep/storage/memory"
	"github.com/jmcleod/masterkeep/storage/postgres"
	"github.com/jmcleod/masterkeep/tempkey"
)

// backendStore is what every storage backend provides.
type backendStore interface {
	storage.Store
	storage.CredentialStore
}

// app holds the services one command invocation works with.
type app struct {
	store  backendStore
	params crypto.KDFParams
	keys   *masterkey.Service
	temp   *tempkey.Service
	legacy *legacyauth.Migrator
}

func openStore(ctx context.Context, c *config.Config) (backendStore, error) {
	switch c.Storage.Backend {
	case config.BackendMemory:
		return memory.NewRepository(), nil
	case config.BackendBBolt:
		s, err := bboltstorage.NewStoreFromFile(c.Storage.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open bbolt storage: %w", err)
		}
		return s, nil
	case config.BackendPostgres:
		s, err := postgres.Open(ctx, c.Storage.DSN, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
}

func newMailer(c *config.Config) notify.Mailer {
	if c.Mail.WebhookURL == "" {
		return notify.NewLogMailer(log)
	}
	return notify.NewWebhookMailer(c.Mail.WebhookURL, c.Mail.Token, c.Mail.Timeout.Std())
}

// withApp opens storage, wires the services and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	params, err := cfg.KDFParams()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	keys := masterkey.New(store,
		masterkey.WithKDFParams(params),
		masterkey.WithScheme(cfg.Crypto.Scheme),
		masterkey.WithLogger(log),
	)
	a := &app{
		store:  store,
		params: params,
		keys:   keys,
		temp: tempkey.New(store, keys,
			tempkey.WithKDFParams(params),
			tempkey.WithMaxAge(cfg.TempKey.MaxAge.Std()),
			tempkey.WithMailer(newMailer(cfg)),
			tempkey.WithLogger(log),
		),
		legacy: legacyauth.New(store,
			legacyauth.WithKDFParams(params),
			legacyauth.WithLogger(log),
		),
	}
	return fn(log.WithContext(ctx), a)
}
