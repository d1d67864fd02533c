package entities

import "time"

// Audit actions recorded by the canon engine.
const (
	ActionEntryCreated       = "entry_created"
	ActionEntryUpdated       = "entry_updated"
	ActionEntryLocked        = "entry_locked"
	ActionEntryDeleted       = "entry_deleted"
	ActionEntryRestored      = "entry_restored"
	ActionSoftLockOverridden = "soft_lock_overridden"
	ActionConflictResolved   = "conflict_resolved"
	ActionTimelineForked     = "timeline_forked"
)

// AuditActions lists every recorded action.
var AuditActions = []string{
	ActionEntryCreated,
	ActionEntryUpdated,
	ActionEntryLocked,
	ActionEntryDeleted,
	ActionEntryRestored,
	ActionSoftLockOverridden,
	ActionConflictResolved,
	ActionTimelineForked,
}

// IsAuditAction reports whether action is one the engine records.
func IsAuditAction(action string) bool {
	for _, a := range AuditActions {
		if a == action {
			return true
		}
	}
	return false
}

// AuditEntry represents a logged action in the system.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Action    string         `json:"action"`
	EntryID   string         `json:"entry_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
