package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/application/handlers"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
)

func newSearchCmd() *cobra.Command {
	var (
		limit    int
		kind     string
		timeline string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search canon entries by meaning",
		Long:  "Performs semantic search over the canon visible from a timeline. Requires search.enabled in config.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				if d.SearchHandler == nil {
					return errSearchDisabled
				}
				resp, err := d.SearchHandler.Handle(cmd.Context(), handlers.SearchRequest{
					ProjectID:  d.ProjectID,
					TimelineID: timeline,
					Query:      args[0],
					Kind:       entities.EntityKind(kind),
					Limit:      limit,
				})
				if err != nil {
					return fmt.Errorf("searching canon: %w", err)
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				if len(resp.Results) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No entries found.")
					return nil
				}
				for i, r := range resp.Results {
					fmt.Fprintf(cmd.OutOrStdout(), "%d. (%.3f) ", i+1, r.Score)
					printEntry(cmd.OutOrStdout(), &r.Entry.CanonEntry)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultSearchLimit, "Maximum number of results")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Filter by kind")
	cmd.Flags().StringVarP(&timeline, "timeline", "t", "", "Timeline ID (defaults to main)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index for the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				if d.SearchHandler == nil {
					return errSearchDisabled
				}
				n, err := d.SearchHandler.HandleReindex(cmd.Context(), d.ProjectID)
				if err != nil {
					return fmt.Errorf("reindexing: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d entries\n", n)
				return nil
			})
		},
	})

	return cmd
}
