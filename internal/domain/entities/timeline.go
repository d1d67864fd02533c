package entities

import "time"

// MainTimelineName is the name given to a project's main timeline.
const MainTimelineName = "Main"

// Timeline is a named branch of canon. Each project has exactly one main
// timeline; every other timeline descends from it.
type Timeline struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	IsMain           bool      `json:"is_main"`
	ParentID         string    `json:"parent_id,omitempty"`
	ForkPointEntryID string    `json:"fork_point_entry_id,omitempty"` // Event entry the branch diverged at
	CreatedAt        time.Time `json:"created_at"`
}

// EntryTimelineID returns the timeline id stored on entries of this timeline.
// Entries on the main timeline carry no timeline id.
func (t *Timeline) EntryTimelineID() string {
	if t.IsMain {
		return ""
	}
	return t.ID
}
