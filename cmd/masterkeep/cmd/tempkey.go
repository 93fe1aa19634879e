package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/masterkeep/masterkey"
)

var (
	tempMaxAge     time.Duration
	tempEmailGroup string
	tempEmailAll   bool
)

var tempkeyCmd = &cobra.Command{
	Use:   "tempkey",
	Short: "Temporary master key tools",
}

var tempkeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a temporary master key, replacing any outstanding one",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tempEmailAll && tempEmailGroup != "" {
			return errors.New("--email-all and --email-group are mutually exclusive")
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			master, err := prompt.Secret("Master password")
			if err != nil {
				return err
			}
			key, err := a.keys.Load(ctx, master)
			if err != nil {
				return errors.New(masterkey.UserMessage(err))
			}

			pass, err := a.temp.Create(ctx, key, tempMaxAge)
			if err != nil {
				return err
			}
			info, err := a.temp.Info(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "passphrase: %s\n", pass)
			fmt.Fprintf(cmd.OutOrStdout(), "expires: %s\n", info.ExpiresAt.Format(time.RFC3339))

			// The token stays valid when delivery fails.
			switch {
			case tempEmailAll:
				err = a.temp.SendByEmailForAllUsers(ctx, pass)
			case tempEmailGroup != "":
				err = a.temp.SendByEmailForGroup(ctx, tempEmailGroup, pass)
			}
			if err != nil {
				return fmt.Errorf("temporary master key issued but not sent: %w", err)
			}
			return nil
		})
	},
}

var tempkeyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a temporary master key passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			pass, err := prompt.Secret("Temporary master key")
			if err != nil {
				return err
			}
			if _, err := a.temp.GetUsingKey(ctx, pass); err != nil {
				return errors.New(masterkey.UserMessage(err))
			}
			info, err := a.temp.Info(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid until %s\n", info.ExpiresAt.Format(time.RFC3339))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(tempkeyCmd)
	tempkeyCmd.AddCommand(tempkeyCreateCmd, tempkeyCheckCmd)

	f := tempkeyCreateCmd.Flags()
	f.DurationVar(&tempMaxAge, "max-age", 0, "Lifetime of the key (default from config)")
	f.StringVar(&tempEmailGroup, "email-group", "", "Email the passphrase to the users of this group")
	f.BoolVar(&tempEmailAll, "email-all", false, "Email the passphrase to every user")
}
