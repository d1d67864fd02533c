// Package main provides the entry point for the canon CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version       = "0.1.0-dev"
	globalProject string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootCmd := newRootCmd()
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "canon",
		Short:         "Versioned story canon with LLM conflict checking",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&globalProject, "project", "p", "", "Project to operate on (defaults to the registry default)")

	rootCmd.AddCommand(
		newInitCmd(),
		newEntriesCmd(),
		newContextCmd(),
		newCheckCmd(),
		newResolveCmd(),
		newTimelinesCmd(),
		newSearchCmd(),
		newImportCmd(),
		newExportCmd(),
		newWatchCmd(),
		newAuditCmd(),
	)

	return rootCmd
}
