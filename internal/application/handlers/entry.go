package handlers

import (
	"context"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/services"
)

// EntryHandler handles canon entry operations at the application layer.
type EntryHandler struct {
	canon *services.CanonService
}

// NewEntryHandler creates a new EntryHandler.
func NewEntryHandler(canon *services.CanonService) *EntryHandler {
	return &EntryHandler{
		canon: canon,
	}
}

// EntryListResult contains the result of listing entries.
type EntryListResult struct {
	Entries []entities.CanonEntry `json:"entries"`
	Total   int                   `json:"total"`
}

// EntryDetail is an entry with its history, audit trail and children.
type EntryDetail struct {
	Entry    *entities.CanonEntry    `json:"entry"`
	Versions []entities.CanonVersion `json:"versions"`
	Audit    []entities.AuditEntry   `json:"audit,omitempty"`
	Children []entities.CanonEntry   `json:"children,omitempty"`
}

// HandleCreate creates a new entry.
func (h *EntryHandler) HandleCreate(ctx context.Context, in services.NewEntry) (*entities.CanonEntry, error) {
	return h.canon.CreateEntry(ctx, in)
}

// HandleUpdate applies a patch to an entry.
func (h *EntryHandler) HandleUpdate(ctx context.Context, entryID string, patch services.EntryPatch, meta services.UpdateMeta) (*entities.CanonEntry, error) {
	return h.canon.UpdateEntry(ctx, entryID, patch, meta)
}

// HandleLock changes an entry's lock state.
func (h *EntryHandler) HandleLock(ctx context.Context, entryID string, state entities.LockState, actor string) (*entities.CanonEntry, error) {
	return h.canon.LockEntry(ctx, entryID, state, actor)
}

// HandleDelete soft-deletes an entry.
func (h *EntryHandler) HandleDelete(ctx context.Context, entryID, actor string) error {
	return h.canon.DeleteEntry(ctx, entryID, actor)
}

// HandleRestore re-applies an earlier version as a new version.
func (h *EntryHandler) HandleRestore(ctx context.Context, entryID string, version int, actor string) (*entities.CanonEntry, error) {
	return h.canon.RestoreVersion(ctx, entryID, version, actor)
}

// HandleHistory returns every version of an entry.
func (h *EntryHandler) HandleHistory(ctx context.Context, entryID string) ([]entities.CanonVersion, error) {
	return h.canon.History(ctx, entryID)
}

// HandleShow returns an entry with its versions, audit trail and children.
func (h *EntryHandler) HandleShow(ctx context.Context, entryID string) (*EntryDetail, error) {
	entry, err := h.canon.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	versions, err := h.canon.History(ctx, entryID)
	if err != nil {
		return nil, err
	}
	audit, err := h.canon.AuditTrail(ctx, entryID)
	if err != nil {
		return nil, err
	}
	children, err := h.canon.Children(ctx, entryID)
	if err != nil {
		return nil, err
	}
	return &EntryDetail{
		Entry:    entry,
		Versions: versions,
		Audit:    audit,
		Children: children,
	}, nil
}

// HandleAudit returns the newest audit records of one action.
func (h *EntryHandler) HandleAudit(ctx context.Context, action string, limit int) ([]entities.AuditEntry, error) {
	return h.canon.RecentActivity(ctx, action, limit)
}

// HandleList lists the active entries of one timeline, optionally of one kind.
func (h *EntryHandler) HandleList(ctx context.Context, projectID, timelineID string, kind entities.EntityKind) (*EntryListResult, error) {
	if kind != "" && !kind.IsValid() {
		return nil, canonerr.InvalidArgument("unknown entity kind %q", kind)
	}
	list, err := h.canon.ListEntries(ctx, projectID, timelineID)
	if err != nil {
		return nil, err
	}
	if kind != "" {
		filtered := list[:0]
		for _, e := range list {
			if e.Kind == kind {
				filtered = append(filtered, e)
			}
		}
		list = filtered
	}
	return &EntryListResult{
		Entries: list,
		Total:   len(list),
	}, nil
}

// HandleFindByAttribute lists entries whose attribute holds value.
func (h *EntryHandler) HandleFindByAttribute(ctx context.Context, projectID, name, value string) (*EntryListResult, error) {
	list, err := h.canon.FindByAttribute(ctx, projectID, name, value)
	if err != nil {
		return nil, err
	}
	return &EntryListResult{
		Entries: list,
		Total:   len(list),
	}, nil
}
