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

// maxParentDepth bounds parent chain walks.
const maxParentDepth = 64

// EntryIndexer is notified after canon writes so a secondary index can follow.
type EntryIndexer interface {
	Index(ctx context.Context, entry entities.CanonEntry) error
	Remove(ctx context.Context, entryID string) error
}

// NewEntry describes an entry to create.
type NewEntry struct {
	ProjectID   string
	Kind        entities.EntityKind
	Name        string
	Description string
	Payload     entities.Payload
	LockState   entities.LockState // Defaults to unlocked
	ParentID    string
	TimelineID  string // Empty for the main timeline
	Actor       string
}

// EntryPatch is a partial update. Nil fields are left unchanged.
type EntryPatch struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	ParentID    *string          `json:"parent_id,omitempty"`  // Pointer to "" clears the parent
	Payload     entities.Payload `json:"payload,omitempty"`    // Replaces the payload wholesale
	Attributes  map[string]any   `json:"attributes,omitempty"` // Merged; a nil value removes the key
}

// IsEmpty reports whether the patch changes nothing.
func (p EntryPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.ParentID == nil &&
		p.Payload == nil && len(p.Attributes) == 0
}

// UpdateMeta describes who changed an entry and why.
type UpdateMeta struct {
	Actor      string
	Reason     string
	ChangeType entities.ChangeType // Defaults to manual_edit
}

// CanonService manages canon entries: creation, versioned updates, locking,
// soft deletion and restore.
type CanonService struct {
	store   ports.CanonStore
	logger  *slog.Logger
	audit   auditor
	indexer EntryIndexer
}

// NewCanonService creates a new canon service.
func NewCanonService(store ports.CanonStore, logger *slog.Logger) *CanonService {
	logger = orDiscard(logger)
	return &CanonService{
		store:  store,
		logger: logger,
		audit:  auditor{store: store, logger: logger},
	}
}

// SetIndexer registers a secondary index notified after every write.
func (s *CanonService) SetIndexer(indexer EntryIndexer) {
	s.indexer = indexer
}

// CreateEntry validates and stores a new entry at version 1.
func (s *CanonService) CreateEntry(ctx context.Context, in NewEntry) (*entities.CanonEntry, error) {
	name := strings.TrimSpace(in.Name)
	if in.ProjectID == "" {
		return nil, canonerr.Validation("project id is required")
	}
	if !in.Kind.IsValid() {
		return nil, canonerr.Validation("unknown entity kind %q", in.Kind)
	}
	if name == "" {
		return nil, canonerr.Validation("name is required")
	}
	slug := entities.Slugify(name)
	if slug == "" {
		return nil, canonerr.Validation("name %q has no usable characters", name)
	}
	lock := in.LockState
	if lock == "" {
		lock = entities.LockUnlocked
	}
	if !lock.IsValid() {
		return nil, canonerr.Validation("unknown lock state %q", lock)
	}
	if err := in.Payload.Validate(in.Kind); err != nil {
		return nil, canonerr.Validation("%s", err.Error())
	}

	timelineID, err := s.entryTimelineID(ctx, in.ProjectID, in.TimelineID)
	if err != nil {
		return nil, err
	}
	if in.ParentID != "" {
		if err := s.checkParent(ctx, in.ProjectID, "", in.ParentID); err != nil {
			return nil, err
		}
	}
	if err := s.checkSlugFree(ctx, in.ProjectID, timelineID, slug, ""); err != nil {
		return nil, err
	}

	now := timeNow()
	entry := &entities.CanonEntry{
		ID:          generateUUID(),
		ProjectID:   in.ProjectID,
		Kind:        in.Kind,
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(in.Description),
		Payload:     in.Payload.Clone(),
		LockState:   lock,
		Version:     1,
		ParentID:    in.ParentID,
		TimelineID:  timelineID,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	version := newVersion(entry, in.Actor, "created", entities.ChangeCreated)

	if err := s.store.CreateEntry(ctx, entry, version); err != nil {
		return nil, fmt.Errorf("creating entry: %w", err)
	}

	s.audit.record(ctx, entities.ActionEntryCreated, entry.ID, map[string]any{
		"name":  entry.Name,
		"kind":  string(entry.Kind),
		"actor": in.Actor,
	})
	s.index(ctx, entry)
	s.logger.DebugContext(ctx, "entry created", "entry_id", entry.ID, "slug", entry.Slug)

	return entry, nil
}

// UpdateEntry applies a partial patch and records a new version.
func (s *CanonService) UpdateEntry(ctx context.Context, entryID string, patch EntryPatch, meta UpdateMeta) (*entities.CanonEntry, error) {
	if patch.IsEmpty() {
		return nil, canonerr.Validation("patch changes nothing")
	}
	changeType := meta.ChangeType
	if changeType == "" {
		changeType = entities.ChangeManualEdit
	}
	if !changeType.IsValid() || changeType == entities.ChangeCreated {
		return nil, canonerr.Validation("invalid change type %q for update", changeType)
	}

	current, err := s.activeEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if current.IsHardLocked() {
		return nil, canonerr.Locked(entryID)
	}

	next := current.Clone()
	if err := s.applyPatch(ctx, current, &next, patch); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1
	next.UpdatedAt = timeNow()

	reason := meta.Reason
	if reason == "" {
		reason = "updated"
	}
	version := newVersion(&next, meta.Actor, reason, changeType)

	if err := s.store.UpdateEntry(ctx, &next, current.Version, version); err != nil {
		return nil, fmt.Errorf("updating entry: %w", err)
	}

	if current.LockState == entities.LockSoft {
		s.audit.record(ctx, entities.ActionSoftLockOverridden, entryID, map[string]any{
			"actor":   meta.Actor,
			"reason":  reason,
			"version": next.Version,
		})
	}
	s.audit.record(ctx, entities.ActionEntryUpdated, entryID, map[string]any{
		"actor":       meta.Actor,
		"reason":      reason,
		"change_type": string(changeType),
		"version":     next.Version,
	})
	s.index(ctx, &next)

	return &next, nil
}

// applyPatch validates patch against current and writes the result into next.
func (s *CanonService) applyPatch(ctx context.Context, current, next *entities.CanonEntry, patch EntryPatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return canonerr.Validation("name cannot be empty")
		}
		slug := entities.Slugify(name)
		if slug == "" {
			return canonerr.Validation("name %q has no usable characters", name)
		}
		if slug != current.Slug {
			if err := s.checkSlugFree(ctx, current.ProjectID, current.TimelineID, slug, current.ID); err != nil {
				return err
			}
		}
		next.Name = name
		next.Slug = slug
	}
	if patch.Description != nil {
		next.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.ParentID != nil {
		if *patch.ParentID != "" {
			if err := s.checkParent(ctx, current.ProjectID, current.ID, *patch.ParentID); err != nil {
				return err
			}
		}
		next.ParentID = *patch.ParentID
	}
	if patch.Payload != nil {
		next.Payload = patch.Payload.Clone()
	}
	if len(patch.Attributes) > 0 {
		next.Payload = next.Payload.Merge(patch.Attributes)
	}
	if err := next.Payload.Validate(next.Kind); err != nil {
		return canonerr.Validation("%s", err.Error())
	}
	return nil
}

// LockEntry changes an entry's lock state without creating a version.
func (s *CanonService) LockEntry(ctx context.Context, entryID string, state entities.LockState, actor string) (*entities.CanonEntry, error) {
	if !state.IsValid() {
		return nil, canonerr.Validation("unknown lock state %q", state)
	}
	current, err := s.activeEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if current.LockState == state {
		return current, nil
	}

	now := timeNow()
	if err := s.store.SetLockState(ctx, entryID, state, now); err != nil {
		return nil, fmt.Errorf("setting lock state: %w", err)
	}

	s.audit.record(ctx, entities.ActionEntryLocked, entryID, map[string]any{
		"actor": actor,
		"from":  string(current.LockState),
		"to":    string(state),
	})

	current.LockState = state
	current.UpdatedAt = now
	return current, nil
}

// DeleteEntry soft-deletes an entry. Deleting an inactive entry is a no-op.
func (s *CanonService) DeleteEntry(ctx context.Context, entryID, actor string) error {
	current, err := s.store.FindEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("finding entry: %w", err)
	}
	if current == nil {
		return canonerr.NotFound("entry", entryID)
	}
	if !current.Active {
		return nil
	}
	if current.IsHardLocked() {
		return canonerr.Locked(entryID)
	}

	if err := s.store.DeactivateEntry(ctx, entryID, timeNow()); err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}

	s.audit.record(ctx, entities.ActionEntryDeleted, entryID, map[string]any{
		"actor": actor,
		"name":  current.Name,
	})
	if s.indexer != nil {
		if err := s.indexer.Remove(ctx, entryID); err != nil {
			s.logger.WarnContext(ctx, "index removal failed", "entry_id", entryID, "error", err)
		}
	}
	return nil
}

// RestoreVersion re-applies the snapshot of version n as a new version.
func (s *CanonService) RestoreVersion(ctx context.Context, entryID string, n int, actor string) (*entities.CanonEntry, error) {
	v, err := s.store.FindVersion(ctx, entryID, n)
	if err != nil {
		return nil, fmt.Errorf("finding version: %w", err)
	}
	if v == nil {
		return nil, canonerr.NotFound("version", fmt.Sprintf("%s@%d", entryID, n))
	}

	name := v.Snapshot.Name
	description := v.Snapshot.Description
	payload := v.Snapshot.Payload.Clone()
	if payload == nil {
		payload = entities.Payload{}
	}

	restored, err := s.UpdateEntry(ctx, entryID, EntryPatch{
		Name:        &name,
		Description: &description,
		Payload:     payload,
	}, UpdateMeta{
		Actor:      actor,
		Reason:     fmt.Sprintf("restored to version %d", n),
		ChangeType: entities.ChangeManualEdit,
	})
	if err != nil {
		return nil, err
	}

	s.audit.record(ctx, entities.ActionEntryRestored, entryID, map[string]any{
		"actor":        actor,
		"from_version": n,
		"version":      restored.Version,
	})
	return restored, nil
}

// GetEntry returns an entry by ID, including soft-deleted entries.
func (s *CanonService) GetEntry(ctx context.Context, entryID string) (*entities.CanonEntry, error) {
	entry, err := s.store.FindEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("finding entry: %w", err)
	}
	if entry == nil {
		return nil, canonerr.NotFound("entry", entryID)
	}
	return entry, nil
}

// ListEntries lists the active entries stored on one timeline.
func (s *CanonService) ListEntries(ctx context.Context, projectID, timelineID string) ([]entities.CanonEntry, error) {
	timelineID, err := s.entryTimelineID(ctx, projectID, timelineID)
	if err != nil {
		return nil, err
	}
	list, err := s.store.ListEntries(ctx, projectID, timelineID)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return list, nil
}

// FindByAttribute lists active entries whose attribute name holds value.
func (s *CanonService) FindByAttribute(ctx context.Context, projectID, name, value string) ([]entities.CanonEntry, error) {
	if name == "" {
		return nil, canonerr.InvalidArgument("attribute name is required")
	}
	list, err := s.store.FindEntriesByAttribute(ctx, projectID, name, value)
	if err != nil {
		return nil, fmt.Errorf("finding entries by attribute: %w", err)
	}
	return list, nil
}

// Children lists the active entries nested under an entry.
func (s *CanonService) Children(ctx context.Context, entryID string) ([]entities.CanonEntry, error) {
	list, err := s.store.ListChildren(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("listing children: %w", err)
	}
	return list, nil
}

// History returns every version of an entry in ascending order.
func (s *CanonService) History(ctx context.Context, entryID string) ([]entities.CanonVersion, error) {
	if _, err := s.GetEntry(ctx, entryID); err != nil {
		return nil, err
	}
	versions, err := s.store.FindVersionsByEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("finding versions: %w", err)
	}
	return versions, nil
}

// AuditTrail returns the audit records of an entry, oldest first.
func (s *CanonService) AuditTrail(ctx context.Context, entryID string) ([]entities.AuditEntry, error) {
	trail, err := s.store.FindAuditLog(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("finding audit log: %w", err)
	}
	return trail, nil
}

// RecentActivity returns the newest audit records of one action. A limit of
// zero or less returns all of them.
func (s *CanonService) RecentActivity(ctx context.Context, action string, limit int) ([]entities.AuditEntry, error) {
	if !entities.IsAuditAction(action) {
		return nil, canonerr.InvalidArgument("unknown audit action %q", action)
	}
	records, err := s.store.FindAuditLogByAction(ctx, action, limit)
	if err != nil {
		return nil, fmt.Errorf("finding audit log: %w", err)
	}
	return records, nil
}

// activeEntry loads an entry, reporting missing or soft-deleted entries as not found.
func (s *CanonService) activeEntry(ctx context.Context, entryID string) (*entities.CanonEntry, error) {
	entry, err := s.store.FindEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("finding entry: %w", err)
	}
	if entry == nil || !entry.Active {
		return nil, canonerr.NotFound("entry", entryID)
	}
	return entry, nil
}

// entryTimelineID maps a requested timeline to the id stored on entries.
func (s *CanonService) entryTimelineID(ctx context.Context, projectID, timelineID string) (string, error) {
	if timelineID == "" {
		return "", nil
	}
	tl, err := s.store.FindTimeline(ctx, timelineID)
	if err != nil {
		return "", fmt.Errorf("finding timeline: %w", err)
	}
	if tl == nil || tl.ProjectID != projectID {
		return "", canonerr.NotFound("timeline", timelineID)
	}
	return tl.EntryTimelineID(), nil
}

// checkSlugFree rejects a slug held by another active entry on the timeline.
func (s *CanonService) checkSlugFree(ctx context.Context, projectID, timelineID, slug, selfID string) error {
	existing, err := s.store.ListEntries(ctx, projectID, timelineID)
	if err != nil {
		return fmt.Errorf("checking slug: %w", err)
	}
	for i := range existing {
		if existing[i].Slug == slug && existing[i].ID != selfID {
			return canonerr.Validation("slug %q is already used by entry %s", slug, existing[i].ID)
		}
	}
	return nil
}

// checkParent validates a parent reference for entry selfID ("" for a new entry).
func (s *CanonService) checkParent(ctx context.Context, projectID, selfID, parentID string) error {
	if parentID == selfID {
		return canonerr.Validation("entry cannot be its own parent")
	}
	cur := parentID
	for depth := 0; cur != ""; depth++ {
		if depth >= maxParentDepth {
			return canonerr.Validation("parent chain too deep")
		}
		p, err := s.store.FindEntry(ctx, cur)
		if err != nil {
			return fmt.Errorf("finding parent: %w", err)
		}
		if p == nil || !p.Active {
			if cur == parentID {
				return canonerr.Validation("parent entry %s does not exist", parentID)
			}
			return nil
		}
		if p.ProjectID != projectID {
			return canonerr.Validation("parent entry %s belongs to another project", parentID)
		}
		if selfID != "" && p.ParentID == selfID {
			return canonerr.Validation("parent %s would create a cycle", parentID)
		}
		cur = p.ParentID
	}
	return nil
}

// index notifies the indexer, logging failures.
func (s *CanonService) index(ctx context.Context, entry *entities.CanonEntry) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Index(ctx, *entry); err != nil {
		s.logger.WarnContext(ctx, "indexing entry failed", "entry_id", entry.ID, "error", err)
	}
}

// newVersion snapshots entry as a version record.
func newVersion(entry *entities.CanonEntry, actor, reason string, changeType entities.ChangeType) *entities.CanonVersion {
	return &entities.CanonVersion{
		ID:         generateUUID(),
		EntryID:    entry.ID,
		Version:    entry.Version,
		Snapshot:   entry.Snapshot(),
		Actor:      actor,
		Reason:     reason,
		ChangeType: changeType,
		CreatedAt:  entry.UpdatedAt,
	}
}
