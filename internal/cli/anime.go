package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hitoshi/metachan/internal/model"
)

func newAnimeCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anime",
		Short: "Fetch aggregated anime records",
	}
	cmd.AddCommand(newAnimeGetCmd(st))
	return cmd
}

func newAnimeGetCmd(st *state) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "get <mal-id>",
		Short: "Show the aggregated record of one anime",
		Long: `Show the aggregated record of one anime. A cache miss builds the
record from the providers and stores it, exactly as the API does.

Examples:
  metachanctl anime get 52991
  metachanctl anime get 52991 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			malID, err := parseMalID(args[0])
			if err != nil {
				return err
			}
			return st.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				record, err := b.Anime.GetFullRecord(ctx, malID)
				if errors.Is(err, model.ErrNotFound) {
					return fmt.Errorf("anime %d not found", malID)
				}
				if err != nil {
					return fmt.Errorf("fetching anime %d: %w", malID, err)
				}
				if jsonOut {
					return writeJSON(st.out, record)
				}
				st.printRecord(record)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the full record as JSON")
	return cmd
}

func (s *state) printRecord(r *model.AnimeRecord) {
	title := r.Titles.English
	if title == "" {
		title = r.Titles.Romaji
	}
	s.header("%s (%d)", title, r.ID)
	if r.Titles.Japanese != "" {
		fmt.Fprintf(s.out, "  %s\n", r.Titles.Japanese)
	}

	fmt.Fprintf(s.out, "  type:      %s\n", r.Type)
	fmt.Fprintf(s.out, "  status:    %s\n", r.Status)
	fmt.Fprintf(s.out, "  episodes:  %d (%d listed)\n", r.EpisodeCount, len(r.Episodes.Episodes))
	fmt.Fprintf(s.out, "  score:     %.2f\n", r.Ranks.Scores.Average)
	fmt.Fprintf(s.out, "  streaming: sub %d, dub %d\n", len(r.Episodes.Availability.Sub), len(r.Episodes.Availability.Dub))
	fmt.Fprintf(s.out, "  ids:       kitsu %s, tvdb %s, tmdb %s, anilist %s\n",
		orDash(r.Mappings.KitsuID), orDash(r.Mappings.TVDBID), orDash(r.Mappings.TMDBID), orDash(r.Mappings.AnilistID))

	if len(r.Seasons) > 1 {
		fmt.Fprintln(s.out, "  seasons:")
		for _, season := range r.Seasons {
			marker := " "
			if season.Current {
				marker = color.CyanString("*")
			}
			fmt.Fprintf(s.out, "   %s %-8d %-6s %s\n", marker, season.MalID, season.Type, season.Titles.Romaji)
		}
	}
}
