package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/application/handlers"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/services"
)

type importFlags struct {
	format     string
	dryRun     bool
	onConflict string
	timeline   string
	actor      string
}

func newImportCmd() *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import canon entries from JSON or CSV",
		Long: "Imports seed canon from a structured file. Rows are validated first; " +
			"parents may name existing entries or rows earlier in the file.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "auto", "File format (json, csv, auto)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Validate without saving")
	cmd.Flags().StringVar(&flags.onConflict, "on-conflict", "skip", "Existing entry handling (skip, fail)")
	cmd.Flags().StringVarP(&flags.timeline, "timeline", "t", "", "Timeline ID (defaults to main)")
	cmd.Flags().StringVar(&flags.actor, "actor", DefaultActor, "Who made the change")

	return cmd
}

func runImport(cmd *cobra.Command, filePath string, flags importFlags) error {
	strategy := services.ConflictStrategy(flags.onConflict)
	if !strategy.IsValid() {
		return fmt.Errorf("invalid --on-conflict value %q (valid: skip, fail)", flags.onConflict)
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	return withDeps(func(d *Deps) error {
		fmt.Fprintf(out, "Importing %s...\n", filePath)

		result, err := d.ImportHandler.Handle(ctx, d.ProjectID, filePath, handlers.ImportOptions{
			Format:     flags.format,
			DryRun:     flags.dryRun,
			OnConflict: strategy,
			TimelineID: flags.timeline,
			Actor:      flags.actor,
		})
		if err != nil {
			return fmt.Errorf("importing file: %w", err)
		}

		// Display errors
		if len(result.Errors) > 0 {
			fmt.Fprintf(out, "\nValidation errors (%d):\n", len(result.Errors))
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  %s\n", e.Error())
			}
		}

		// Display summary
		fmt.Fprintln(out)
		if flags.dryRun {
			fmt.Fprintf(out, "Dry run: %d entries would be imported", result.Imported)
		} else {
			fmt.Fprintf(out, "Imported: %d entries", result.Imported)
		}

		if result.Skipped > 0 {
			fmt.Fprintf(out, ", %d skipped (already exist)", result.Skipped)
		}

		if len(result.Errors) > 0 {
			fmt.Fprintf(out, ", %d errors", len(result.Errors))
		}

		fmt.Fprintln(out)

		return nil
	})
}
