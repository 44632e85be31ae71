package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hitoshi/metachan/internal/model"
)

func newMappingsCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Inspect and synchronise the identity mapping table",
	}
	cmd.AddCommand(newMappingsListCmd(st), newMappingsSyncCmd(st))
	return cmd
}

func newMappingsListCmd(st *state) *cobra.Command {
	var (
		filter  model.MappingFilter
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List identity mappings ordered by MAL ID",
		Long: `List identity mappings ordered by MAL ID.

Examples:
  metachanctl mappings list --limit 50
  metachanctl mappings list --type TV --has-tvdb
  metachanctl mappings list --missing-kitsu --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.Limit < 0 || filter.Offset < 0 {
				return fmt.Errorf("--limit and --offset must not be negative")
			}
			return st.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				mappings, err := b.Mappings.Search(ctx, filter)
				if err != nil {
					return fmt.Errorf("listing mappings: %w", err)
				}
				if jsonOut {
					return writeJSON(st.out, mappings)
				}

				total, err := b.Mappings.Count(ctx)
				if err != nil {
					return fmt.Errorf("counting mappings: %w", err)
				}

				st.header("%-8s %-8s %-8s %-8s %-8s %s", "MAL", "KITSU", "TVDB", "TMDB", "ANILIST", "TYPE")
				for _, m := range mappings {
					fmt.Fprintf(st.out, "%-8d %-8s %-8s %-8s %-8s %s\n",
						m.MalID, orDash(m.KitsuID), orDash(m.TVDBID), orDash(m.TMDBID), orDash(m.AnilistID), m.Type)
				}
				fmt.Fprintf(st.out, "\nShowing %d of %d mappings\n", len(mappings), total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filter.Type, "type", "", "Only mappings of this media type (TV, MOVIE, OVA...)")
	cmd.Flags().BoolVar(&filter.HasTVDB, "has-tvdb", false, "Only mappings with a TVDB ID")
	cmd.Flags().BoolVar(&filter.HasTMDB, "has-tmdb", false, "Only mappings with a TMDB ID")
	cmd.Flags().BoolVar(&filter.MissingKitsu, "missing-kitsu", false, "Only mappings without a Kitsu ID")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum number of rows (0 for all)")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "Rows to skip")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newMappingsSyncCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Download the mapping list and upsert it now",
		Long: `Download the mapping list and upsert it in batches.

Failed batches are reported and skipped; the command exits non-zero
when any batch failed. Use 'metachanctl tasks run MappingSync' instead
to record the run in the task log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				stats, err := b.Sync.Sync(ctx)
				if stats.Total > 0 {
					fmt.Fprintf(st.out, "entries: %d, upserted: %d, skipped: %d, failed batches: %d\n",
						stats.Total, stats.Upserted, stats.Skipped, stats.FailedBatches)
				}
				if err != nil {
					return fmt.Errorf("mapping sync: %w", err)
				}
				st.ok("Mapping table synchronised")
				return nil
			})
		},
	}
}
