package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/masterkeep/sessioncache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Session key cache maintenance",
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired session cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := cfg.SessionCache
		if sc.Dir == "" {
			return errors.New("session cache dir is not configured")
		}
		cache, err := sessioncache.New(sc.Dir, []byte(sc.Secret),
			sessioncache.WithTTL(sc.TTL.Std()),
			sessioncache.WithLogger(log),
		)
		if err != nil {
			return err
		}
		defer cache.Close()

		removed, err := cache.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheSweepCmd)
}
