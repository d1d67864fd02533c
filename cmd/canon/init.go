package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/application/handlers"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/config"
	anthropicllm "github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/llm/anthropic"
)

type initFlags struct {
	description string
	provider    string
	search      bool
}

func newInitCmd() *cobra.Command {
	var flags initFlags

	cmd := &cobra.Command{
		Use:   "init [project]",
		Short: "Initialize a canon workspace and project",
		Long: "Creates a .canon directory with default configuration if needed, registers the project " +
			"and creates its main timeline. With search enabled, also sets up the Qdrant collection.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := DefaultProjectName
			if len(args) == 1 {
				name = args[0]
			}
			return runInit(cmd, name, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.description, "description", "d", "", "Project description")
	cmd.Flags().StringVar(&flags.provider, "provider", "", "LLM provider for a new config (openai, anthropic)")
	cmd.Flags().BoolVar(&flags.search, "search", false, "Enable semantic search in a new config")

	return cmd
}

func runInit(cmd *cobra.Command, name string, flags initFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	if !config.Exists(cwd) {
		if err := writeInitialConfig(cwd, flags); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created %s\n", config.ConfigFilePath(cwd))
	} else if flags.provider != "" || flags.search {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: config already exists, --provider and --search are ignored")
	}

	return withWorkspaceDeps(func(d *Deps) error {
		result, err := d.InitHandler.Handle(ctx, cwd, handlers.InitOptions{
			Name:        name,
			Description: flags.description,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Project %q created (main timeline %s)\n", result.ProjectID, result.MainTimelineID)
		if d.SearchHandler != nil {
			fmt.Fprintf(out, "Qdrant collection ready: %s\n", result.CollectionName)
		}
		fmt.Fprintln(out, "Canon initialized successfully!")
		return nil
	})
}

// writeInitialConfig writes the commented default config, or a generated one
// when flags customize it.
func writeInitialConfig(basePath string, flags initFlags) error {
	if flags.provider == "" && !flags.search {
		if err := config.WriteDefault(basePath); err != nil {
			return fmt.Errorf("writing default config: %w", err)
		}
		return nil
	}

	cfg := config.Default()
	if flags.provider != "" {
		cfg.LLM.Provider = flags.provider
		if flags.provider == config.ProviderAnthropic {
			cfg.LLM.Model = anthropicllm.DefaultModel
		}
	}
	cfg.Search.Enabled = flags.search
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.Write(basePath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
