package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/masterkeep/crypto"
	"github.com/jmcleod/masterkeep/internal/uuid"
	"github.com/jmcleod/masterkeep/masterkey"
	"github.com/jmcleod/masterkeep/storage"
)

var (
	userID      string
	userLogin   string
	userEmail   string
	userGroup   string
	wrapTempKey bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User and wrapped master key tools",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			login, err := prompt.NewSecret("Login password")
			if err != nil {
				return err
			}
			hash, err := crypto.HashPassword(login, a.params)
			if err != nil {
				return err
			}
			u := storage.User{
				ID:        uuid.New(),
				Login:     userLogin,
				Email:     userEmail,
				GroupID:   userGroup,
				LoginHash: hash,
			}
			if err := a.store.CreateUser(ctx, u); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s: %s\n", u.Login, u.ID)
			return nil
		})
	},
}

var userWrapCmd = &cobra.Command{
	Use:   "wrap",
	Short: "Wrap the master password for a user",
	Long: `Creates a user's wrapped copy of the master password, authorised either by
the master password itself or, with --tempkey, by a temporary master key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var (
				key *masterkey.Key
				err error
			)
			if wrapTempKey {
				var pass string
				if pass, err = prompt.Secret("Temporary master key"); err != nil {
					return err
				}
				key, err = a.temp.GetUsingKey(ctx, pass)
			} else {
				var master string
				if master, err = prompt.Secret("Master password"); err != nil {
					return err
				}
				key, err = a.keys.Load(ctx, master)
			}
			if err != nil {
				return errors.New(masterkey.UserMessage(err))
			}

			login, err := prompt.Secret("User login password")
			if err != nil {
				return err
			}
			if _, err := a.legacy.Authenticate(ctx, userID, login); err != nil {
				return errors.New(masterkey.UserMessage(err))
			}
			if err := a.keys.WrapForUser(ctx, userID, login, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "master key wrapped for %s (version %d)\n", userID, key.Version())
			return nil
		})
	},
}

var userLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate a user and unwrap their master key",
	Long: `Runs the login path: the login password is checked (upgrading legacy
hashes), the wrap is re-created when the hash format changed, and the
master key is unwrapped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			login, err := prompt.Secret("Login password")
			if err != nil {
				return err
			}
			res, err := a.legacy.Authenticate(ctx, userID, login)
			if err != nil {
				return errors.New(masterkey.UserMessage(err))
			}
			if res.RewrapRequired {
				err := a.keys.RefreshUserWrap(ctx, userID, login, login)
				if err != nil {
					log.Warn().Err(err).Str("user", userID).Msg("rewrap after login hash upgrade")
				}
			}

			key, err := a.keys.UnwrapForUser(ctx, userID, login)
			if err != nil {
				return errors.New(masterkey.UserMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "login ok via %s (master key version %d)\n", res.Strategy, key.Version())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd, userWrapCmd, userLoginCmd)

	userAddCmd.Flags().StringVar(&userLogin, "login", "", "Login name")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	userAddCmd.Flags().StringVar(&userGroup, "group", "", "Group ID")
	_ = userAddCmd.MarkFlagRequired("login")

	for _, c := range []*cobra.Command{userWrapCmd, userLoginCmd} {
		c.Flags().StringVar(&userID, "user", "", "User ID")
		_ = c.MarkFlagRequired("user")
	}
	userWrapCmd.Flags().BoolVar(&wrapTempKey, "tempkey", false, "Authorise with a temporary master key")
}
