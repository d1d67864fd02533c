// Package handlers contains application use case handlers.
package handlers

import (
	"context"
	"fmt"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/services"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/config"
)

// InitHandler registers a project in a workspace and prepares its storage.
type InitHandler struct {
	timelines         *services.TimelineManager
	collectionManager ports.CollectionManager
	vectorSize        uint64
}

// NewInitHandler creates a new init handler. collectionManager may be nil when
// semantic search is disabled.
func NewInitHandler(timelines *services.TimelineManager, collectionManager ports.CollectionManager, vectorSize uint64) *InitHandler {
	return &InitHandler{
		timelines:         timelines,
		collectionManager: collectionManager,
		vectorSize:        vectorSize,
	}
}

// InitOptions describes the project to register.
type InitOptions struct {
	Name        string
	Description string
}

// InitResult contains the result of initialization.
type InitResult struct {
	ConfigPath     string
	ProjectID      string
	MainTimelineID string
	CollectionName string
}

// Handle registers a project and creates its main timeline. The workspace
// config must already exist.
func (h *InitHandler) Handle(ctx context.Context, basePath string, opts InitOptions) (*InitResult, error) {
	if !config.Exists(basePath) {
		return nil, fmt.Errorf("canon not initialized in %s", basePath)
	}

	cfg, err := config.Load(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	projects, err := config.LoadProjects(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading projects: %w", err)
	}

	projectID := config.SanitizeProjectName(opts.Name)
	if projects.Exists(projectID) {
		return nil, fmt.Errorf("project %q already initialized", projectID)
	}

	mainTimeline, err := h.timelines.EnsureMain(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating main timeline: %w", err)
	}

	if h.collectionManager != nil {
		if err := h.collectionManager.EnsureCollection(ctx, h.vectorSize); err != nil {
			return nil, fmt.Errorf("creating collection: %w", err)
		}
	}

	projects.Add(projectID, config.ProjectEntry{
		Description:    opts.Description,
		MainTimelineID: mainTimeline.ID,
	})
	if err := projects.Save(basePath); err != nil {
		return nil, err
	}

	return &InitResult{
		ConfigPath:     config.ConfigFilePath(basePath),
		ProjectID:      projectID,
		MainTimelineID: mainTimeline.ID,
		CollectionName: cfg.Qdrant.Collection,
	}, nil
}
