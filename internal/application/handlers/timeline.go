package handlers

import (
	"context"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/services"
)

// TimelineHandler handles timeline operations.
type TimelineHandler struct {
	timelines *services.TimelineManager
}

// NewTimelineHandler creates a new TimelineHandler.
func NewTimelineHandler(timelines *services.TimelineManager) *TimelineHandler {
	return &TimelineHandler{timelines: timelines}
}

// ForkRequest describes a timeline to branch off.
type ForkRequest struct {
	ProjectID        string
	ParentID         string // Empty forks from main
	Name             string
	Description      string
	ForkPointEntryID string
}

// TimelineView is a timeline with its lineage, main first.
type TimelineView struct {
	Timeline entities.Timeline   `json:"timeline"`
	Lineage  []entities.Timeline `json:"lineage"`
}

// HandleList lists a project's timelines, main first.
func (h *TimelineHandler) HandleList(ctx context.Context, projectID string) ([]entities.Timeline, error) {
	if _, err := h.timelines.EnsureMain(ctx, projectID); err != nil {
		return nil, err
	}
	return h.timelines.List(ctx, projectID)
}

// HandleFork creates a new timeline.
func (h *TimelineHandler) HandleFork(ctx context.Context, req ForkRequest) (*entities.Timeline, error) {
	if req.ParentID == "" {
		return h.timelines.CreateFork(ctx, req.ProjectID, req.Name, req.Description, req.ForkPointEntryID)
	}
	return h.timelines.CreateForkFrom(ctx, req.ProjectID, req.ParentID, req.Name, req.Description, req.ForkPointEntryID)
}

// HandleShow returns a timeline and its lineage.
func (h *TimelineHandler) HandleShow(ctx context.Context, projectID, timelineID string) (*TimelineView, error) {
	tl, err := h.timelines.ResolveActiveTimeline(ctx, projectID, timelineID)
	if err != nil {
		return nil, err
	}
	lineage, err := h.timelines.Lineage(ctx, tl)
	if err != nil {
		return nil, err
	}
	return &TimelineView{Timeline: *tl, Lineage: lineage}, nil
}
