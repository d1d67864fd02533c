package handlers

import (
	"context"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/services"
)

// ConflictHandler loads canon context, checks generated text against it and
// applies resolutions.
type ConflictHandler struct {
	loader       *services.ContextLoader
	detector     *services.ConflictDetector
	engine       *services.ResolutionEngine
	defaultLevel entities.EnforcementLevel
}

// NewConflictHandler creates a new ConflictHandler. defaultLevel applies when
// a check names no level.
func NewConflictHandler(loader *services.ContextLoader, detector *services.ConflictDetector, engine *services.ResolutionEngine, defaultLevel entities.EnforcementLevel) *ConflictHandler {
	if defaultLevel == "" {
		defaultLevel = entities.EnforcementStrict
	}
	return &ConflictHandler{
		loader:       loader,
		detector:     detector,
		engine:       engine,
		defaultLevel: defaultLevel,
	}
}

// CheckRequest asks for one piece of generated text to be checked.
type CheckRequest struct {
	ProjectID  string
	TimelineID string
	Text       string
	Level      entities.EnforcementLevel
}

// CheckResult holds the conflicts found in a text.
type CheckResult struct {
	ProjectID    string                    `json:"project_id"`
	TimelineID   string                    `json:"timeline_id"`
	Level        entities.EnforcementLevel `json:"level"`
	EntriesInUse int                       `json:"entries_in_context"`
	Conflicts    []entities.CanonConflict  `json:"conflicts"`
}

// ContextResult is a loaded canon context and its prompt rendering.
type ContextResult struct {
	Context  *entities.CanonContext
	Rendered string
}

// HandleContext loads and renders the canon context of a timeline.
func (h *ConflictHandler) HandleContext(ctx context.Context, projectID, timelineID string) (*ContextResult, error) {
	cc, err := h.loader.Load(ctx, projectID, timelineID)
	if err != nil {
		return nil, err
	}
	return &ContextResult{
		Context:  cc,
		Rendered: services.RenderContext(cc),
	}, nil
}

// HandleCheck detects conflicts between text and the timeline's canon.
// Detector failures yield an empty conflict list, never an error.
func (h *ConflictHandler) HandleCheck(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	level := req.Level
	if level == "" {
		level = h.defaultLevel
	}

	cc, err := h.loader.Load(ctx, req.ProjectID, req.TimelineID)
	if err != nil {
		return nil, err
	}

	conflicts := h.detector.Detect(ctx, req.Text, cc, level)
	if conflicts == nil {
		conflicts = []entities.CanonConflict{}
	}

	return &CheckResult{
		ProjectID:    req.ProjectID,
		TimelineID:   cc.Timeline().ID,
		Level:        level,
		EntriesInUse: cc.Len(),
		Conflicts:    conflicts,
	}, nil
}

// HandleResolve applies resolutions in order. Each outcome carries its own error.
func (h *ConflictHandler) HandleResolve(ctx context.Context, reqs []services.ResolutionRequest) []services.ResolutionOutcome {
	return h.engine.ResolveBatch(ctx, reqs)
}
