package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached documents",
	}
	cmd.AddCommand(newCachePurgeCmd(st), newCacheInvalidateCmd(st))
	return cmd
}

func newCachePurgeCmd(st *state) *cobra.Command {
	var graceDays int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete documents that expired more than --grace-days ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if graceDays < 0 {
				return fmt.Errorf("--grace-days must not be negative")
			}
			return st.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				n, err := b.Cache.PurgeExpired(ctx, time.Duration(graceDays)*24*time.Hour)
				if err != nil {
					return fmt.Errorf("purging cache: %w", err)
				}
				st.ok("Removed %d expired documents", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&graceDays, "grace-days", 7, "Keep documents expired for fewer days than this")
	return cmd
}

func newCacheInvalidateCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <mal-id>",
		Short: "Delete every cached document of one anime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			malID, err := parseMalID(args[0])
			if err != nil {
				return err
			}
			return st.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				n, err := b.Cache.Invalidate(ctx, malID)
				if err != nil {
					return fmt.Errorf("invalidating cache: %w", err)
				}
				if n == 0 {
					st.warn("No cached documents for anime %d", malID)
					return nil
				}
				st.ok("Removed %d documents for anime %d", n, malID)
				return nil
			})
		},
	}
}
