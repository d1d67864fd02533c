package entities

import "time"

// ChangeType classifies why a canon entry changed.
type ChangeType string

const (
	ChangeCreated            ChangeType = "created"
	ChangeManualEdit         ChangeType = "manual_edit"
	ChangeAISuggestion       ChangeType = "ai_suggestion"
	ChangeConflictResolution ChangeType = "conflict_resolution"
)

// IsValid checks if the change type is known.
func (c ChangeType) IsValid() bool {
	switch c {
	case ChangeCreated, ChangeManualEdit, ChangeAISuggestion, ChangeConflictResolution:
		return true
	default:
		return false
	}
}

// Snapshot is the content of an entry captured by a version.
type Snapshot struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Payload     Payload `json:"payload,omitempty"`
}

// CanonVersion is an immutable snapshot of a CanonEntry. Versions of an entry
// form a contiguous sequence starting at 1.
type CanonVersion struct {
	ID         string     `json:"id"`
	EntryID    string     `json:"entry_id"`
	Version    int        `json:"version"`
	Snapshot   Snapshot   `json:"snapshot"`
	Actor      string     `json:"actor,omitempty"` // Empty for system-generated changes
	Reason     string     `json:"reason"`
	ChangeType ChangeType `json:"change_type"`
	CreatedAt  time.Time  `json:"created_at"`
}
