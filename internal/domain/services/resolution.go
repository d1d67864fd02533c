package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
)

// forkNamePrefix starts the default name of a timeline created by a fork resolution.
const forkNamePrefix = "What-if: "

// ResolutionPayload carries the optional inputs of a resolution.
type ResolutionPayload struct {
	Patch               EntryPatch `json:"patch"`
	TimelineName        string     `json:"timeline_name,omitempty"`
	TimelineDescription string     `json:"timeline_description,omitempty"`
	Reason              string     `json:"reason,omitempty"`
	// FromEntryTimeline parents a fork on the conflicting entry's timeline
	// instead of main.
	FromEntryTimeline bool `json:"from_entry_timeline,omitempty"`
}

// ResolutionRequest asks for one conflict to be resolved.
type ResolutionRequest struct {
	Conflict  entities.CanonConflict  `json:"conflict"`
	Kind      entities.ResolutionKind `json:"kind"`
	Payload   *ResolutionPayload      `json:"payload,omitempty"`
	ProjectID string                  `json:"project_id"`
	Actor     string                  `json:"actor,omitempty"`
}

// ResolutionOutcome is the result of one resolution.
type ResolutionOutcome struct {
	Kind     entities.ResolutionKind `json:"kind"`
	Conflict entities.CanonConflict  `json:"conflict"`
	Entry    *entities.CanonEntry    `json:"entry,omitempty"`    // Updated entry, or the forked copy
	Timeline *entities.Timeline      `json:"timeline,omitempty"` // Set by fork_timeline
	Err      error                   `json:"-"`
	Error    string                  `json:"error,omitempty"`
}

// ResolutionEngine applies an author's decision to a detected conflict.
type ResolutionEngine struct {
	store     ports.CanonStore
	canon     *CanonService
	timelines *TimelineManager
	logger    *slog.Logger
	audit     auditor
}

// NewResolutionEngine creates a new resolution engine.
func NewResolutionEngine(store ports.CanonStore, canon *CanonService, timelines *TimelineManager, logger *slog.Logger) *ResolutionEngine {
	logger = orDiscard(logger)
	return &ResolutionEngine{
		store:     store,
		canon:     canon,
		timelines: timelines,
		logger:    logger,
		audit:     auditor{store: store, logger: logger},
	}
}

// Resolve applies one resolution. keep_canon never mutates canon,
// update_canon goes through the normal versioned update and so respects hard
// locks, and fork_timeline copies the entry onto a new timeline.
func (r *ResolutionEngine) Resolve(ctx context.Context, req ResolutionRequest) (*ResolutionOutcome, error) {
	out := &ResolutionOutcome{Kind: req.Kind, Conflict: req.Conflict}

	var err error
	switch req.Kind {
	case entities.ResolutionKeepCanon:
	case entities.ResolutionUpdateCanon:
		out.Entry, err = r.updateCanon(ctx, req)
	case entities.ResolutionForkTimeline:
		out.Timeline, out.Entry, err = r.forkTimeline(ctx, req)
	default:
		return nil, canonerr.InvalidArgument("unknown resolution %q", req.Kind)
	}
	if err != nil {
		return nil, err
	}

	details := map[string]any{
		"resolution": string(req.Kind),
		"actor":      req.Actor,
		"conflict":   req.Conflict,
	}
	if out.Timeline != nil {
		details["timeline_id"] = out.Timeline.ID
	}
	if out.Entry != nil {
		details["result_entry_id"] = out.Entry.ID
		details["result_version"] = out.Entry.Version
	}
	r.audit.record(ctx, entities.ActionConflictResolved, req.Conflict.EntryID, details)
	r.logger.InfoContext(ctx, "conflict resolved",
		"resolution", req.Kind,
		"entry_id", req.Conflict.EntryID,
	)
	return out, nil
}

// ResolveBatch applies requests in order. A failed request does not stop the
// batch; its outcome carries the error.
func (r *ResolutionEngine) ResolveBatch(ctx context.Context, reqs []ResolutionRequest) []ResolutionOutcome {
	outcomes := make([]ResolutionOutcome, 0, len(reqs))
	for _, req := range reqs {
		out, err := r.Resolve(ctx, req)
		if err != nil {
			outcomes = append(outcomes, ResolutionOutcome{
				Kind:     req.Kind,
				Conflict: req.Conflict,
				Err:      err,
				Error:    err.Error(),
			})
			continue
		}
		outcomes = append(outcomes, *out)
	}
	return outcomes
}

func (r *ResolutionEngine) updateCanon(ctx context.Context, req ResolutionRequest) (*entities.CanonEntry, error) {
	if req.Payload == nil || req.Payload.Patch.IsEmpty() {
		return nil, canonerr.InvalidArgument("update_canon requires a patch")
	}
	if _, err := r.conflictEntry(ctx, req); err != nil {
		return nil, err
	}

	reason := req.Payload.Reason
	if reason == "" {
		reason = "conflict resolution"
		if req.Conflict.Description != "" {
			reason += ": " + req.Conflict.Description
		}
	}
	return r.canon.UpdateEntry(ctx, req.Conflict.EntryID, req.Payload.Patch, UpdateMeta{
		Actor:      req.Actor,
		Reason:     reason,
		ChangeType: entities.ChangeConflictResolution,
	})
}

func (r *ResolutionEngine) forkTimeline(ctx context.Context, req ResolutionRequest) (*entities.Timeline, *entities.CanonEntry, error) {
	source, err := r.conflictEntry(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	payload := ResolutionPayload{}
	if req.Payload != nil {
		payload = *req.Payload
	}
	name := strings.TrimSpace(payload.TimelineName)
	if name == "" {
		name = forkNamePrefix + source.Name
	}
	forkPoint := ""
	if source.Kind == entities.KindEvent {
		forkPoint = source.ID
	}

	var tl *entities.Timeline
	if payload.FromEntryTimeline && source.TimelineID != "" {
		tl, err = r.timelines.newForkFrom(ctx, source.ProjectID, source.TimelineID, name, payload.TimelineDescription, forkPoint)
	} else {
		tl, err = r.timelines.NewFork(ctx, source.ProjectID, name, payload.TimelineDescription, forkPoint)
	}
	if err != nil {
		return nil, nil, err
	}

	now := timeNow()
	copied := source.Clone()
	copied.ID = generateUUID()
	copied.TimelineID = tl.ID
	copied.Version = 1
	copied.LockState = entities.LockUnlocked
	copied.Active = true
	copied.CreatedAt = now
	copied.UpdatedAt = now

	if !payload.Patch.IsEmpty() {
		patched := copied.Clone()
		if err := r.canon.applyPatch(ctx, &copied, &patched, payload.Patch); err != nil {
			return nil, nil, err
		}
		copied = patched
	}

	reason := fmt.Sprintf("forked from %s version %d", source.ID, source.Version)
	version := newVersion(&copied, req.Actor, reason, entities.ChangeConflictResolution)
	if err := r.store.CreateFork(ctx, tl, &copied, version); err != nil {
		return nil, nil, fmt.Errorf("creating fork: %w", err)
	}

	r.audit.record(ctx, entities.ActionTimelineForked, source.ID, map[string]any{
		"timeline_id":    tl.ID,
		"name":           tl.Name,
		"parent_id":      tl.ParentID,
		"forked_entry":   copied.ID,
		"source_version": source.Version,
	})
	r.canon.index(ctx, &copied)
	return tl, &copied, nil
}

// conflictEntry loads the active entry a conflict refers to.
func (r *ResolutionEngine) conflictEntry(ctx context.Context, req ResolutionRequest) (*entities.CanonEntry, error) {
	if req.Conflict.EntryID == "" {
		return nil, canonerr.NotFound("entry", "")
	}
	entry, err := r.canon.activeEntry(ctx, req.Conflict.EntryID)
	if err != nil {
		return nil, err
	}
	if req.ProjectID != "" && entry.ProjectID != req.ProjectID {
		return nil, canonerr.NotFound("entry", req.Conflict.EntryID)
	}
	return entry, nil
}
