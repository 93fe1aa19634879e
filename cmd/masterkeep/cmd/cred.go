package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/masterkeep/internal/util"
	"github.com/jmcleod/masterkeep/masterkey"
)

var credID string

var credCmd = &cobra.Command{
	Use:   "cred",
	Short: "Store and read credentials sealed under the master password",
}

var credPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Seal and store a credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			master, err := prompt.Secret("Master password")
			if err != nil {
				return err
			}
			key, err := a.keys.Load(ctx, master)
			if err != nil {
				return errors.New(masterkey.UserMessage(err))
			}
			secret, err := prompt.Secret("Secret")
			if err != nil {
				return err
			}
			sealed, err := masterkey.SealCredential(key, []byte(secret), a.params)
			if err != nil {
				return err
			}
			if err := a.store.PutCredential(ctx, credID, sealed); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", credID)
			return nil
		})
	},
}

var credGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Open a stored credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			master, err := prompt.Secret("Master password")
			if err != nil {
				return err
			}
			key, err := a.keys.Load(ctx, master)
			if err != nil {
				return errors.New(masterkey.UserMessage(err))
			}
			sealed, err := a.store.GetCredential(ctx, credID)
			if err != nil {
				return err
			}
			plaintext, err := masterkey.OpenCredential(key, sealed)
			if err != nil {
				return errors.New(masterkey.UserMessage(err))
			}
			defer util.WipeBytes(plaintext)
			fmt.Fprintln(cmd.OutOrStdout(), string(plaintext))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(credCmd)
	credCmd.AddCommand(credPutCmd, credGetCmd)
	for _, c := range []*cobra.Command{credPutCmd, credGetCmd} {
		c.Flags().StringVar(&credID, "id", "", "Credential ID")
		_ = c.MarkFlagRequired("id")
	}
}
