// Package ports defines interfaces for external service communication.
package ports

import (
	"context"
	"time"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
)

// CanonStore defines the durable storage boundary for canon entries, their
// versions, timelines and the audit log.
//
// Find methods return nil and no error when the record does not exist. Write
// methods report rule violations as canonerr values: a taken slug or a lost
// version race is canonerr.ErrConflict, a hard lock is canonerr.ErrLocked.
type CanonStore interface {
	// EnsureSchema creates the database schema if it doesn't exist.
	EnsureSchema(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	// Entry operations

	// CreateEntry inserts an entry together with its first version atomically.
	CreateEntry(ctx context.Context, entry *entities.CanonEntry, version *entities.CanonVersion) error

	// UpdateEntry replaces the entry's content if its stored version still equals
	// expectedVersion and it is not hard-locked, appending version in the same
	// transaction.
	UpdateEntry(ctx context.Context, entry *entities.CanonEntry, expectedVersion int, version *entities.CanonVersion) error

	// SetLockState changes the lock state without touching the version.
	SetLockState(ctx context.Context, entryID string, state entities.LockState, updatedAt time.Time) error

	// DeactivateEntry soft-deletes an entry. Hard-locked entries are refused.
	DeactivateEntry(ctx context.Context, entryID string, updatedAt time.Time) error

	// FindEntry finds an entry by ID, active or not.
	FindEntry(ctx context.Context, entryID string) (*entities.CanonEntry, error)

	// ListEntries lists the active entries stored on exactly one timeline.
	// An empty timelineID selects the main timeline.
	ListEntries(ctx context.Context, projectID, timelineID string) ([]entities.CanonEntry, error)

	// ListDeletedSlugs lists the slugs of soft-deleted entries stored on
	// exactly one timeline.
	ListDeletedSlugs(ctx context.Context, projectID, timelineID string) ([]string, error)

	// ListChildren lists the active entries whose parent is parentID.
	ListChildren(ctx context.Context, parentID string) ([]entities.CanonEntry, error)

	// FindEntriesByAttribute lists a project's active entries whose payload
	// attribute name holds value. List attributes match any element.
	FindEntriesByAttribute(ctx context.Context, projectID, name, value string) ([]entities.CanonEntry, error)

	// Version operations

	// FindVersion finds one version of an entry.
	FindVersion(ctx context.Context, entryID string, version int) (*entities.CanonVersion, error)

	// FindVersionsByEntry finds all versions of an entry, ordered by version ascending.
	FindVersionsByEntry(ctx context.Context, entryID string) ([]entities.CanonVersion, error)

	// Timeline operations

	// SaveTimeline inserts a timeline. A second main timeline for a project is a conflict.
	SaveTimeline(ctx context.Context, timeline *entities.Timeline) error

	// FindTimeline finds a timeline by ID.
	FindTimeline(ctx context.Context, timelineID string) (*entities.Timeline, error)

	// FindMainTimeline finds the main timeline of a project.
	FindMainTimeline(ctx context.Context, projectID string) (*entities.Timeline, error)

	// ListTimelines lists a project's timelines, main first then by creation time.
	ListTimelines(ctx context.Context, projectID string) ([]entities.Timeline, error)

	// CreateFork persists a new timeline and the entry copied onto it, with the
	// copy's first version, in one transaction.
	CreateFork(ctx context.Context, timeline *entities.Timeline, entry *entities.CanonEntry, version *entities.CanonVersion) error

	// Audit operations

	// LogAction logs an action to the audit log.
	LogAction(ctx context.Context, action string, entryID string, details map[string]any) error

	// FindAuditLog finds audit log entries for a specific entry.
	FindAuditLog(ctx context.Context, entryID string) ([]entities.AuditEntry, error)

	// FindAuditLogByAction finds audit log entries by action type, newest first.
	FindAuditLogByAction(ctx context.Context, action string, limit int) ([]entities.AuditEntry, error)
}
