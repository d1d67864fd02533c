package entities

import (
	"sort"
	"strings"
	"time"
)

// ContextEntry is a canon entry as seen by validation and generation.
type ContextEntry struct {
	CanonEntry
	Locked bool `json:"locked"`
}

// KindGroup is the set of context entries of one kind.
type KindGroup struct {
	Kind    EntityKind     `json:"kind"`
	Entries []ContextEntry `json:"entries"`
}

// CanonContext is an immutable snapshot of a project's active canon on one
// timeline. Accessors return copies.
type CanonContext struct {
	projectID string
	timeline  Timeline
	groups    []KindGroup
	byID      map[string]int
	flat      []ContextEntry
	loadedAt  time.Time
}

// NewCanonContext builds a context from active entries. Entries are grouped by
// kind in canonical order and sorted by slug within a group.
func NewCanonContext(projectID string, timeline Timeline, entries []CanonEntry, loadedAt time.Time) *CanonContext {
	byKind := make(map[EntityKind][]ContextEntry, len(Kinds))
	for i := range entries {
		e := entries[i].Clone()
		byKind[e.Kind] = append(byKind[e.Kind], ContextEntry{CanonEntry: e, Locked: e.IsLocked()})
	}

	cc := &CanonContext{
		projectID: projectID,
		timeline:  timeline,
		byID:      make(map[string]int, len(entries)),
		loadedAt:  loadedAt,
	}
	for _, kind := range Kinds {
		group := byKind[kind]
		if len(group) == 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if group[i].Slug == group[j].Slug {
				return group[i].ID < group[j].ID
			}
			return group[i].Slug < group[j].Slug
		})
		cc.groups = append(cc.groups, KindGroup{Kind: kind, Entries: group})
		for _, e := range group {
			cc.byID[e.ID] = len(cc.flat)
			cc.flat = append(cc.flat, e)
		}
	}
	return cc
}

// ProjectID returns the owning project.
func (c *CanonContext) ProjectID() string { return c.projectID }

// Timeline returns the timeline the context was loaded for.
func (c *CanonContext) Timeline() Timeline { return c.timeline }

// LoadedAt returns when the snapshot was taken.
func (c *CanonContext) LoadedAt() time.Time { return c.loadedAt }

// Len returns the number of entries.
func (c *CanonContext) Len() int { return len(c.flat) }

// Groups returns the entries grouped by kind.
func (c *CanonContext) Groups() []KindGroup {
	out := make([]KindGroup, len(c.groups))
	for i, g := range c.groups {
		out[i] = KindGroup{Kind: g.Kind, Entries: cloneContextEntries(g.Entries)}
	}
	return out
}

// Entries returns every entry in group order.
func (c *CanonContext) Entries() []ContextEntry {
	return cloneContextEntries(c.flat)
}

// Entry finds an entry by id.
func (c *CanonContext) Entry(id string) (ContextEntry, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return ContextEntry{}, false
	}
	return cloneContextEntry(c.flat[idx]), true
}

// EntryByName finds an entry by display name, slug or alias, case-insensitively.
func (c *CanonContext) EntryByName(name string) (ContextEntry, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return ContextEntry{}, false
	}
	slug := Slugify(name)
	for _, e := range c.flat {
		if strings.ToLower(e.Name) == want || e.Slug == slug {
			return cloneContextEntry(e), true
		}
	}
	for _, e := range c.flat {
		for _, alias := range e.Payload.Strings("aliases") {
			if strings.ToLower(alias) == want {
				return cloneContextEntry(e), true
			}
		}
	}
	return ContextEntry{}, false
}

func cloneContextEntry(e ContextEntry) ContextEntry {
	return ContextEntry{CanonEntry: e.CanonEntry.Clone(), Locked: e.Locked}
}

func cloneContextEntries(in []ContextEntry) []ContextEntry {
	out := make([]ContextEntry, len(in))
	for i := range in {
		out[i] = cloneContextEntry(in[i])
	}
	return out
}
