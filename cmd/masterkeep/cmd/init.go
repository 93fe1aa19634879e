package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/internal/uuid"
	"github.com/jmcleod/masterkeep/storage"
)

var (
	initLogin string
	initEmail string
	initGroup string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set the first master password and create the administrator",
	Long: `Hashes the master password, stores it, creates the administrator user
and wraps the master password under the administrator's login password.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			master, err := prompt.NewSecret("Master password")
			if err != nil {
				return err
			}
			login, err := prompt.NewSecret("Administrator login password")
			if err != nil {
				return err
			}

			loginHash, err := crypto.HashPassword(login, a.params)
			if err != nil {
				return err
			}
			admin := storage.User{
				ID:        uuid.New(),
				Login:     initLogin,
				Email:     initEmail,
				GroupID:   initGroup,
				LoginHash: loginHash,
			}

			key, err := a.keys.Bootstrap(ctx, master)
			if err != nil {
				return err
			}
			if err := a.store.CreateUser(ctx, admin); err != nil {
				return err
			}
			if err := a.keys.WrapForUser(ctx, admin.ID, login, key); err != nil {
				return err
			}

			printBanner(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "master password set (version %d)\n", key.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "administrator %s: %s\n", admin.Login, admin.ID)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initLogin, "login", "admin", "Administrator login name")
	initCmd.Flags().StringVar(&initEmail, "email", "", "Administrator email address")
	initCmd.Flags().StringVar(&initGroup, "group", "admins", "Administrator group")
}
