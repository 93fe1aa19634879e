package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/masterkey"
)

var changeUser string

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Master password tools",
}

var masterCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a master password against the stored hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			candidate, err := prompt.Secret("Master password")
			if err != nil {
				return err
			}
			ok, err := a.keys.CheckMasterPassword(ctx, candidate)
			if err != nil {
				return err
			}
			if !ok {
				return masterkey.ErrWrongMasterPassword
			}
			version, err := a.keys.CurrentVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "master password ok (version %d)\n", version)
			return nil
		})
	},
}

var masterChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Rotate the master password and re-encrypt every stored credential",
	Long: `Rotates the master password. Stored credentials are re-encrypted in one
transaction and the new password, its watermark and the operator's wrap are
committed together. Other users must have their wraps re-created afterwards,
for example with a temporary master key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			oldMaster, err := prompt.Secret("Current master password")
			if err != nil {
				return err
			}
			newMaster, err := prompt.NewSecret("New master password")
			if err != nil {
				return err
			}
			login, err := prompt.Secret("Your login password")
			if err != nil {
				return err
			}
			if _, err := a.legacy.Authenticate(ctx, changeUser, login); err != nil {
				return errors.New(masterkey.UserMessage(err))
			}

			key, err := a.keys.ChangeMasterPassword(ctx, masterkey.ChangeRequest{
				UserID:            changeUser,
				OldMasterPassword: oldMaster,
				NewMasterPassword: newMaster,
				LoginPassword:     login,
			}, masterkey.StoreReencrypter(a.store, a.params))
			if errors.Is(err, masterkey.ErrWrongMasterPassword) || errors.Is(err, crypto.ErrAuthFailure) {
				return errors.New(masterkey.UserMessage(err))
			}
			if err != nil {
				return err
			}

			users, err := a.store.ListUsers(ctx, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "master password rotated (version %d)\n", key.Version())
			if n := len(users) - 1; n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d other user(s) need a new wrap\n", n)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(masterCmd)
	masterCmd.AddCommand(masterCheckCmd, masterChangeCmd)
	masterChangeCmd.Flags().StringVar(&changeUser, "user", "", "ID of the operator performing the rotation")
	_ = masterChangeCmd.MarkFlagRequired("user")
}
