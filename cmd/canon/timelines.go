package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/application/handlers"
)

func newTimelinesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "timelines",
		Aliases: []string{"timeline"},
		Short:   "Manage timelines",
		RunE:    runTimelinesList,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the project's timelines",
			Args:  cobra.NoArgs,
			RunE:  runTimelinesList,
		},
		newTimelinesForkCmd(),
		newTimelinesShowCmd(),
	)

	return cmd
}

func runTimelinesList(cmd *cobra.Command, _ []string) error {
	return withDeps(func(d *Deps) error {
		list, err := d.TimelineHandler.HandleList(cmd.Context(), d.ProjectID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, tl := range list {
			marker := " "
			if tl.IsMain {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s  %s", marker, tl.ID, tl.Name)
			if tl.ParentID != "" {
				fmt.Fprintf(out, "  (from %s)", tl.ParentID)
			}
			fmt.Fprintln(out)
		}
		return nil
	})
}

func newTimelinesForkCmd() *cobra.Command {
	var req handlers.ForkRequest

	cmd := &cobra.Command{
		Use:   "fork <name>",
		Short: "Create a what-if timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				req.ProjectID = d.ProjectID
				req.Name = args[0]
				tl, err := d.TimelineHandler.HandleFork(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("forking timeline: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created timeline %q (%s)\n", tl.Name, tl.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.ParentID, "from", "", "Parent timeline ID (defaults to main)")
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "Timeline description")
	cmd.Flags().StringVar(&req.ForkPointEntryID, "at", "", "Event entry ID the timeline diverges at")

	return cmd
}

func newTimelinesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show a timeline and its lineage as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return withDeps(func(d *Deps) error {
				view, err := d.TimelineHandler.HandleShow(cmd.Context(), d.ProjectID, id)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}
