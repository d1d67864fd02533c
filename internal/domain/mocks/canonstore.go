package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
)

// CanonStore is an in-memory implementation of ports.CanonStore. It enforces
// the same slug, version and lock rules as the SQL store.
type CanonStore struct {
	mu        sync.Mutex
	Entries   map[string]*entities.CanonEntry
	Versions  map[string][]entities.CanonVersion
	Timelines map[string]*entities.Timeline
	Audit     []entities.AuditEntry

	// Err fails every call when set.
	Err error

	// Fine-grained failures
	UpdateEntryErr  error
	CreateForkErr   error
	LogActionErr    error
	SaveTimelineErr error

	// BeforeUpdate runs before UpdateEntry checks the version, outside the lock.
	// Tests use it to interleave a competing writer.
	BeforeUpdate func()

	// Call tracking
	UpdateEntryCallCount int
	CreateForkCallCount  int
}

// NewCanonStore creates a new empty mock CanonStore.
func NewCanonStore() *CanonStore {
	return &CanonStore{
		Entries:   make(map[string]*entities.CanonEntry),
		Versions:  make(map[string][]entities.CanonVersion),
		Timelines: make(map[string]*entities.Timeline),
	}
}

// EnsureSchema creates the database schema if it doesn't exist.
func (m *CanonStore) EnsureSchema(_ context.Context) error {
	return m.Err
}

// Close closes the database connection.
func (m *CanonStore) Close() error {
	return nil
}

// CreateEntry inserts an entry and its first version.
func (m *CanonStore) CreateEntry(_ context.Context, entry *entities.CanonEntry, version *entities.CanonVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if err := m.checkSlugLocked(entry); err != nil {
		return err
	}
	e := entry.Clone()
	m.Entries[e.ID] = &e
	m.Versions[e.ID] = append(m.Versions[e.ID], cloneVersion(*version))
	return nil
}

// UpdateEntry applies a compare-and-swap on the entry version.
func (m *CanonStore) UpdateEntry(_ context.Context, entry *entities.CanonEntry, expectedVersion int, version *entities.CanonVersion) error {
	if m.BeforeUpdate != nil {
		m.BeforeUpdate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateEntryCallCount++
	if m.Err != nil {
		return m.Err
	}
	if m.UpdateEntryErr != nil {
		return m.UpdateEntryErr
	}
	current, ok := m.Entries[entry.ID]
	if !ok || !current.Active {
		return canonerr.NotFound("entry", entry.ID)
	}
	if current.IsHardLocked() {
		return canonerr.Locked(entry.ID)
	}
	if current.Version != expectedVersion {
		return canonerr.Conflict(entry.ID, "entry was modified concurrently", nil)
	}
	if err := m.checkSlugLocked(entry); err != nil {
		return err
	}
	e := entry.Clone()
	m.Entries[e.ID] = &e
	m.Versions[e.ID] = append(m.Versions[e.ID], cloneVersion(*version))
	return nil
}

// SetLockState changes the lock state without a version bump.
func (m *CanonStore) SetLockState(_ context.Context, entryID string, state entities.LockState, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	e, ok := m.Entries[entryID]
	if !ok || !e.Active {
		return canonerr.NotFound("entry", entryID)
	}
	e.LockState = state
	e.UpdatedAt = updatedAt
	return nil
}

// DeactivateEntry soft-deletes an entry.
func (m *CanonStore) DeactivateEntry(_ context.Context, entryID string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	e, ok := m.Entries[entryID]
	if !ok {
		return canonerr.NotFound("entry", entryID)
	}
	if e.IsHardLocked() {
		return canonerr.Locked(entryID)
	}
	e.Active = false
	e.UpdatedAt = updatedAt
	return nil
}

// FindEntry finds an entry by ID.
func (m *CanonStore) FindEntry(_ context.Context, entryID string) (*entities.CanonEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	e, ok := m.Entries[entryID]
	if !ok {
		return nil, nil
	}
	c := e.Clone()
	return &c, nil
}

// ListEntries lists active entries of one timeline, ordered by slug.
func (m *CanonStore) ListEntries(_ context.Context, projectID, timelineID string) ([]entities.CanonEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var result []entities.CanonEntry
	for _, e := range m.Entries {
		if e.Active && e.ProjectID == projectID && e.TimelineID == timelineID {
			result = append(result, e.Clone())
		}
	}
	sortEntries(result)
	return result, nil
}

// ListDeletedSlugs lists the slugs of inactive entries on one timeline.
func (m *CanonStore) ListDeletedSlugs(_ context.Context, projectID, timelineID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	seen := make(map[string]bool)
	var result []string
	for _, e := range m.Entries {
		if !e.Active && e.ProjectID == projectID && e.TimelineID == timelineID && !seen[e.Slug] {
			seen[e.Slug] = true
			result = append(result, e.Slug)
		}
	}
	sort.Strings(result)
	return result, nil
}

// ListChildren lists active children of an entry.
func (m *CanonStore) ListChildren(_ context.Context, parentID string) ([]entities.CanonEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var result []entities.CanonEntry
	for _, e := range m.Entries {
		if e.Active && e.ParentID == parentID {
			result = append(result, e.Clone())
		}
	}
	sortEntries(result)
	return result, nil
}

// FindEntriesByAttribute lists active entries with a matching attribute.
func (m *CanonStore) FindEntriesByAttribute(_ context.Context, projectID, name, value string) ([]entities.CanonEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var result []entities.CanonEntry
	for _, e := range m.Entries {
		if !e.Active || e.ProjectID != projectID {
			continue
		}
		if _, ok := e.Payload[name]; !ok {
			continue
		}
		for _, v := range attributeValues(e.Payload[name]) {
			if v == value {
				result = append(result, e.Clone())
				break
			}
		}
	}
	sortEntries(result)
	return result, nil
}

// FindVersion finds one version of an entry.
func (m *CanonStore) FindVersion(_ context.Context, entryID string, version int) (*entities.CanonVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, v := range m.Versions[entryID] {
		if v.Version == version {
			c := cloneVersion(v)
			return &c, nil
		}
	}
	return nil, nil
}

// FindVersionsByEntry returns all versions of an entry in ascending order.
func (m *CanonStore) FindVersionsByEntry(_ context.Context, entryID string) ([]entities.CanonVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	result := make([]entities.CanonVersion, 0, len(m.Versions[entryID]))
	for _, v := range m.Versions[entryID] {
		result = append(result, cloneVersion(v))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}

// SaveTimeline inserts a timeline, allowing one main per project.
func (m *CanonStore) SaveTimeline(_ context.Context, timeline *entities.Timeline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.SaveTimelineErr != nil {
		return m.SaveTimelineErr
	}
	return m.saveTimelineLocked(timeline)
}

// FindTimeline finds a timeline by ID.
func (m *CanonStore) FindTimeline(_ context.Context, timelineID string) (*entities.Timeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	t, ok := m.Timelines[timelineID]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

// FindMainTimeline finds the main timeline of a project.
func (m *CanonStore) FindMainTimeline(_ context.Context, projectID string) (*entities.Timeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, t := range m.Timelines {
		if t.ProjectID == projectID && t.IsMain {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

// ListTimelines lists a project's timelines, main first.
func (m *CanonStore) ListTimelines(_ context.Context, projectID string) ([]entities.Timeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var result []entities.Timeline
	for _, t := range m.Timelines {
		if t.ProjectID == projectID {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IsMain != result[j].IsMain {
			return result[i].IsMain
		}
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// CreateFork stores a timeline and the forked entry together.
func (m *CanonStore) CreateFork(_ context.Context, timeline *entities.Timeline, entry *entities.CanonEntry, version *entities.CanonVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateForkCallCount++
	if m.Err != nil {
		return m.Err
	}
	if m.CreateForkErr != nil {
		return m.CreateForkErr
	}
	if err := m.checkSlugLocked(entry); err != nil {
		return err
	}
	if err := m.saveTimelineLocked(timeline); err != nil {
		return err
	}
	e := entry.Clone()
	m.Entries[e.ID] = &e
	m.Versions[e.ID] = append(m.Versions[e.ID], cloneVersion(*version))
	return nil
}

// LogAction appends to the audit log.
func (m *CanonStore) LogAction(_ context.Context, action string, entryID string, details map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.LogActionErr != nil {
		return m.LogActionErr
	}
	m.Audit = append(m.Audit, entities.AuditEntry{
		ID:        int64(len(m.Audit) + 1),
		Action:    action,
		EntryID:   entryID,
		Details:   details,
		CreatedAt: time.Now(),
	})
	return nil
}

// FindAuditLog finds audit log entries for an entry, oldest first.
func (m *CanonStore) FindAuditLog(_ context.Context, entryID string) ([]entities.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var result []entities.AuditEntry
	for _, a := range m.Audit {
		if a.EntryID == entryID {
			result = append(result, a)
		}
	}
	return result, nil
}

// FindAuditLogByAction finds audit log entries by action, newest first.
func (m *CanonStore) FindAuditLogByAction(_ context.Context, action string, limit int) ([]entities.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var result []entities.AuditEntry
	for i := len(m.Audit) - 1; i >= 0; i-- {
		if m.Audit[i].Action == action {
			result = append(result, m.Audit[i])
			if limit > 0 && len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

// AuditActions returns the recorded actions in order.
func (m *CanonStore) AuditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, len(m.Audit))
	for i, a := range m.Audit {
		actions[i] = a.Action
	}
	return actions
}

func (m *CanonStore) checkSlugLocked(entry *entities.CanonEntry) error {
	if !entry.Active {
		return nil
	}
	for _, e := range m.Entries {
		if e.ID == entry.ID || !e.Active {
			continue
		}
		if e.ProjectID == entry.ProjectID && e.TimelineID == entry.TimelineID && e.Slug == entry.Slug {
			return canonerr.Conflict(entry.ID, "slug already in use: "+entry.Slug, nil)
		}
	}
	return nil
}

func (m *CanonStore) saveTimelineLocked(timeline *entities.Timeline) error {
	if timeline.IsMain {
		for _, t := range m.Timelines {
			if t.ProjectID == timeline.ProjectID && t.IsMain && t.ID != timeline.ID {
				return canonerr.Conflict(timeline.ID, "project already has a main timeline", nil)
			}
		}
	}
	c := *timeline
	m.Timelines[c.ID] = &c
	return nil
}

func sortEntries(result []entities.CanonEntry) {
	sort.Slice(result, func(i, j int) bool {
		if result[i].Slug == result[j].Slug {
			return result[i].ID < result[j].ID
		}
		return result[i].Slug < result[j].Slug
	})
}

func attributeValues(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(val)}
	}
}

func cloneVersion(v entities.CanonVersion) entities.CanonVersion {
	v.Snapshot.Payload = v.Snapshot.Payload.Clone()
	return v
}
