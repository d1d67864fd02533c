package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
)

// maxLineageDepth bounds timeline parent walks.
const maxLineageDepth = 128

// TimelineManager owns timeline creation and lineage.
type TimelineManager struct {
	store  ports.CanonStore
	logger *slog.Logger
	audit  auditor
}

// NewTimelineManager creates a new timeline manager.
func NewTimelineManager(store ports.CanonStore, logger *slog.Logger) *TimelineManager {
	logger = orDiscard(logger)
	return &TimelineManager{
		store:  store,
		logger: logger,
		audit:  auditor{store: store, logger: logger},
	}
}

// EnsureMain returns the project's main timeline, creating it on first use.
func (m *TimelineManager) EnsureMain(ctx context.Context, projectID string) (*entities.Timeline, error) {
	if projectID == "" {
		return nil, canonerr.Validation("project id is required")
	}
	main, err := m.store.FindMainTimeline(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("finding main timeline: %w", err)
	}
	if main != nil {
		return main, nil
	}

	main = &entities.Timeline{
		ID:        generateUUID(),
		ProjectID: projectID,
		Name:      entities.MainTimelineName,
		IsMain:    true,
		CreatedAt: timeNow(),
	}
	err = m.store.SaveTimeline(ctx, main)
	if errors.Is(err, canonerr.ErrConflict) {
		// Another writer created it first.
		winner, findErr := m.store.FindMainTimeline(ctx, projectID)
		if findErr != nil {
			return nil, fmt.Errorf("finding main timeline: %w", findErr)
		}
		if winner != nil {
			return winner, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("creating main timeline: %w", err)
	}
	m.logger.InfoContext(ctx, "main timeline created", "project_id", projectID, "timeline_id", main.ID)
	return main, nil
}

// CreateFork creates a timeline branching from the project's main timeline.
func (m *TimelineManager) CreateFork(ctx context.Context, projectID, name, description, forkPointEntryID string) (*entities.Timeline, error) {
	main, err := m.EnsureMain(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return m.CreateForkFrom(ctx, projectID, main.ID, name, description, forkPointEntryID)
}

// CreateForkFrom creates a timeline branching from an explicit parent timeline.
func (m *TimelineManager) CreateForkFrom(ctx context.Context, projectID, parentID, name, description, forkPointEntryID string) (*entities.Timeline, error) {
	tl, err := m.newForkFrom(ctx, projectID, parentID, name, description, forkPointEntryID)
	if err != nil {
		return nil, err
	}
	if err := m.store.SaveTimeline(ctx, tl); err != nil {
		return nil, fmt.Errorf("saving timeline: %w", err)
	}
	m.audit.record(ctx, entities.ActionTimelineForked, forkPointEntryID, map[string]any{
		"timeline_id": tl.ID,
		"name":        tl.Name,
		"parent_id":   tl.ParentID,
	})
	return tl, nil
}

// NewFork builds an unsaved timeline branching from main, for callers that
// persist it together with other records.
func (m *TimelineManager) NewFork(ctx context.Context, projectID, name, description, forkPointEntryID string) (*entities.Timeline, error) {
	main, err := m.EnsureMain(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return m.newForkFrom(ctx, projectID, main.ID, name, description, forkPointEntryID)
}

func (m *TimelineManager) newForkFrom(ctx context.Context, projectID, parentID, name, description, forkPointEntryID string) (*entities.Timeline, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, canonerr.Validation("timeline name is required")
	}

	parent, err := m.store.FindTimeline(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("finding parent timeline: %w", err)
	}
	if parent == nil || parent.ProjectID != projectID {
		return nil, canonerr.Validation("parent timeline %s does not exist in project %s", parentID, projectID)
	}
	if _, err := m.Lineage(ctx, parent); err != nil {
		return nil, err
	}

	if forkPointEntryID != "" {
		point, err := m.store.FindEntry(ctx, forkPointEntryID)
		if err != nil {
			return nil, fmt.Errorf("finding fork point: %w", err)
		}
		if point == nil || !point.Active || point.ProjectID != projectID {
			return nil, canonerr.Validation("fork point %s is not an entry of project %s", forkPointEntryID, projectID)
		}
		if point.Kind != entities.KindEvent {
			return nil, canonerr.Validation("fork point %s must be an event, got %s", forkPointEntryID, point.Kind)
		}
	}

	return &entities.Timeline{
		ID:               generateUUID(),
		ProjectID:        projectID,
		Name:             name,
		Description:      strings.TrimSpace(description),
		IsMain:           false,
		ParentID:         parent.ID,
		ForkPointEntryID: forkPointEntryID,
		CreatedAt:        timeNow(),
	}, nil
}

// ResolveActiveTimeline returns the explicit timeline, or main when none is given.
func (m *TimelineManager) ResolveActiveTimeline(ctx context.Context, projectID, explicitID string) (*entities.Timeline, error) {
	if explicitID == "" {
		return m.EnsureMain(ctx, projectID)
	}
	tl, err := m.store.FindTimeline(ctx, explicitID)
	if err != nil {
		return nil, fmt.Errorf("finding timeline: %w", err)
	}
	if tl == nil || tl.ProjectID != projectID {
		return nil, canonerr.NotFound("timeline", explicitID)
	}
	return tl, nil
}

// Lineage returns the chain from main down to tl, main first. The chain must
// reach main without revisiting a timeline.
func (m *TimelineManager) Lineage(ctx context.Context, tl *entities.Timeline) ([]entities.Timeline, error) {
	chain := []entities.Timeline{*tl}
	seen := map[string]bool{tl.ID: true}
	cur := tl
	for !cur.IsMain {
		if len(chain) > maxLineageDepth {
			return nil, canonerr.Validation("timeline %s lineage is too deep", tl.ID)
		}
		if cur.ParentID == "" {
			return nil, canonerr.Validation("timeline %s does not descend from main", tl.ID)
		}
		if seen[cur.ParentID] {
			return nil, canonerr.Validation("timeline %s lineage contains a cycle", tl.ID)
		}
		parent, err := m.store.FindTimeline(ctx, cur.ParentID)
		if err != nil {
			return nil, fmt.Errorf("finding timeline: %w", err)
		}
		if parent == nil || parent.ProjectID != tl.ProjectID {
			return nil, canonerr.Validation("timeline %s has a missing ancestor %s", tl.ID, cur.ParentID)
		}
		seen[parent.ID] = true
		chain = append(chain, *parent)
		cur = parent
	}

	// Reverse so main comes first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// List returns the project's timelines, main first.
func (m *TimelineManager) List(ctx context.Context, projectID string) ([]entities.Timeline, error) {
	list, err := m.store.ListTimelines(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing timelines: %w", err)
	}
	return list, nil
}
