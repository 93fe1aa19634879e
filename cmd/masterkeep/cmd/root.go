package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/masterkeep/internal/config"
	"github.com/jmcleod/masterkeep/internal/logger"
)

var (
	configPath string
	backend    string
	dbPath     string
	dsn        string
	kdfProfile string
	logLevel   string

	cfg    *config.Config
	log    *logger.Logger
	prompt *prompter
)

var rootCmd = &cobra.Command{
	Use:   "masterkeep",
	Short: "masterkeep administers a shared-credential master key",
	Long: `Administrative tooling for the masterkeep master password: bootstrap,
rotation, per-user wraps, temporary recovery keys and session cache upkeep.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(&config.Config{
			JSONFilePath: configPath,
			Storage: config.Storage{
				Backend: backend,
				Path:    dbPath,
				DSN:     dsn,
			},
			Crypto: config.Crypto{KDFProfile: kdfProfile},
			Log:    config.Log{Level: logLevel},
		})
		if err != nil {
			return err
		}
		log = logger.New(cmd.ErrOrStderr(), "cli", cfg.Log.Level)
		prompt = newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", "", "Path to a JSON config file")
	f.StringVar(&backend, "backend", "", "Storage backend: memory, bbolt or postgres")
	f.StringVar(&dbPath, "db", "", "Path to the bbolt database file")
	f.StringVar(&dsn, "dsn", "", "PostgreSQL connection string")
	f.StringVar(&kdfProfile, "kdf-profile", "", "Argon2id cost profile: interactive, moderate or sensitive")
	f.StringVar(&logLevel, "log-level", "", "Log level")
}
