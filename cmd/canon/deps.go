package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/application/handlers"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/services"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/config"
	embedder "github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/embedder/openai"
	anthropicllm "github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/llm/anthropic"
	openaillm "github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/llm/openai"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/logging"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/relationaldb/sqlite"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/vectordb/qdrant"
)

// errSearchDisabled is returned by search commands when the index is not configured.
var errSearchDisabled = errors.New("semantic search is disabled (set search.enabled: true in .canon/config.yaml)")

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and repositories are internal.
type Deps struct {
	Config    *config.Config
	Projects  *config.ProjectsConfig
	ProjectID string
	BasePath  string
	Logger    *slog.Logger

	EntryHandler    *handlers.EntryHandler
	ConflictHandler *handlers.ConflictHandler
	TimelineHandler *handlers.TimelineHandler
	ImportHandler   *handlers.ImportHandler
	InitHandler     *handlers.InitHandler
	SearchHandler   *handlers.SearchHandler // Nil when search is disabled

	// GeneratorErr is set when no LLM client could be built. Detection then
	// degrades to an empty result.
	GeneratorErr error
}

// withDeps loads config, resolves the project and builds dependencies, then
// calls the provided function. It handles cleanup automatically.
func withDeps(fn func(*Deps) error) error {
	return buildDeps(true, fn)
}

// withWorkspaceDeps is withDeps without a project: used by init.
func withWorkspaceDeps(fn func(*Deps) error) error {
	return buildDeps(false, fn)
}

func buildDeps(requireProject bool, fn func(*Deps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	projects, err := config.LoadProjects(cwd)
	if err != nil {
		return fmt.Errorf("loading projects: %w", err)
	}

	var projectID string
	if requireProject {
		projectID, err = projects.Resolve(globalProject)
		if err != nil {
			return err
		}
	}

	store, err := sqlite.NewRepository(config.SQLiteConfig{Path: cfg.SQLitePath(cwd)})
	if err != nil {
		return fmt.Errorf("creating sqlite repository: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("ensuring sqlite schema: %w", err)
	}

	canon := services.NewCanonService(store, logger)
	timelines := services.NewTimelineManager(store, logger)
	loader := services.NewContextLoader(store, timelines)
	engine := services.NewResolutionEngine(store, canon, timelines, logger)

	generator, genErr := newGenerator(cfg.LLM)
	if genErr != nil {
		logger.Debug("llm client unavailable", "provider", cfg.LLM.Provider, "error", genErr)
		generator = unavailableGenerator{err: genErr}
	}
	detector := services.NewConflictDetector(generator, logger, cfg.Canon.DetectTimeout)

	d := &Deps{
		Config:          cfg,
		Projects:        projects,
		ProjectID:       projectID,
		BasePath:        cwd,
		Logger:          logger,
		EntryHandler:    handlers.NewEntryHandler(canon),
		ConflictHandler: handlers.NewConflictHandler(loader, detector, engine, cfg.EnforcementLevel()),
		TimelineHandler: handlers.NewTimelineHandler(timelines),
		ImportHandler:   handlers.NewImportHandler(services.NewImportService(canon, store, logger)),
		GeneratorErr:    genErr,
	}

	var collections ports.CollectionManager
	vectorSize := embedder.VectorSizeFor(cfg.Embedder.Model)
	if cfg.Search.Enabled {
		index, err := qdrant.NewRepository(cfg.Qdrant)
		if err != nil {
			return fmt.Errorf("creating qdrant repository: %w", err)
		}
		defer index.Close()

		emb, err := embedder.NewEmbedder(cfg.Embedder)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}

		search := services.NewSearchService(emb, index, store, loader, logger)
		canon.SetIndexer(search)
		d.SearchHandler = handlers.NewSearchHandler(search)
		collections = index
	}
	d.InitHandler = handlers.NewInitHandler(timelines, collections, vectorSize)

	return fn(d)
}

// newGenerator builds the LLM client for the configured provider.
func newGenerator(cfg config.LLMConfig) (ports.Generator, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		client, err := anthropicllm.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderOpenAI:
		client, err := openaillm.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// unavailableGenerator fails every call with the construction error.
type unavailableGenerator struct {
	err error
}

func (g unavailableGenerator) Generate(context.Context, string, string) (ports.Generation, error) {
	return ports.Generation{}, g.err
}
