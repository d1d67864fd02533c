package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
)

// ContextLoader assembles read-only canon snapshots for validation and
// generation. It never writes.
type ContextLoader struct {
	store     ports.CanonStore
	timelines *TimelineManager
}

// NewContextLoader creates a new context loader.
func NewContextLoader(store ports.CanonStore, timelines *TimelineManager) *ContextLoader {
	return &ContextLoader{
		store:     store,
		timelines: timelines,
	}
}

// Load returns the active canon of a project as seen from one timeline.
// Entries of the timeline's ancestors are inherited; an entry on a more
// specific timeline replaces an ancestor entry with the same slug, and an
// entry deleted on a fork hides the ancestor entries with its slug.
func (l *ContextLoader) Load(ctx context.Context, projectID, timelineID string) (*entities.CanonContext, error) {
	if projectID == "" {
		return nil, canonerr.InvalidArgument("project id is required")
	}

	tl, err := l.timeline(ctx, projectID, timelineID)
	if err != nil {
		return nil, err
	}

	lineage := []entities.Timeline{*tl}
	if !tl.IsMain {
		if lineage, err = l.timelines.Lineage(ctx, tl); err != nil {
			return nil, err
		}
	}

	bySlug := make(map[string]entities.CanonEntry)
	for i := range lineage {
		tid := lineage[i].EntryTimelineID()
		if tid != "" {
			deleted, err := l.store.ListDeletedSlugs(ctx, projectID, tid)
			if err != nil {
				return nil, fmt.Errorf("listing deleted entries: %w", err)
			}
			for _, slug := range deleted {
				delete(bySlug, slug)
			}
		}

		list, err := l.store.ListEntries(ctx, projectID, tid)
		if err != nil {
			return nil, fmt.Errorf("listing entries: %w", err)
		}
		for j := range list {
			bySlug[list[j].Slug] = list[j]
		}
	}

	merged := make([]entities.CanonEntry, 0, len(bySlug))
	for _, e := range bySlug {
		merged = append(merged, e)
	}
	return entities.NewCanonContext(projectID, *tl, merged, timeNow()), nil
}

// timeline resolves the requested timeline without creating anything. A
// project with no main timeline yet reads as an empty unsaved main.
func (l *ContextLoader) timeline(ctx context.Context, projectID, timelineID string) (*entities.Timeline, error) {
	if timelineID != "" {
		tl, err := l.store.FindTimeline(ctx, timelineID)
		if err != nil {
			return nil, fmt.Errorf("finding timeline: %w", err)
		}
		if tl == nil || tl.ProjectID != projectID {
			return nil, canonerr.NotFound("timeline", timelineID)
		}
		return tl, nil
	}
	main, err := l.store.FindMainTimeline(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("finding main timeline: %w", err)
	}
	if main == nil {
		main = &entities.Timeline{ProjectID: projectID, Name: entities.MainTimelineName, IsMain: true}
	}
	return main, nil
}

// RenderContext formats a canon context as prompt text. The output depends
// only on the context contents.
func RenderContext(cc *entities.CanonContext) string {
	var b strings.Builder
	tl := cc.Timeline()
	fmt.Fprintf(&b, "CANON for project %s (timeline: %s)\n", cc.ProjectID(), tl.Name)

	if cc.Len() == 0 {
		b.WriteString("(no canon entries)\n")
		return b.String()
	}

	for _, group := range cc.Groups() {
		fmt.Fprintf(&b, "\n## %s\n", group.Kind)
		for _, e := range group.Entries {
			fmt.Fprintf(&b, "- [%s] %s (%s)", e.ID, e.Name, e.Slug)
			if e.Locked {
				b.WriteString(" {LOCKED}")
			}
			b.WriteString("\n")
			if e.Description != "" {
				fmt.Fprintf(&b, "  %s\n", e.Description)
			}
			for _, key := range e.Payload.Keys() {
				fmt.Fprintf(&b, "  %s: %s\n", key, formatAttribute(e.Payload[key]))
			}
		}
	}
	return b.String()
}

// formatAttribute renders a payload value deterministically.
func formatAttribute(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatAttribute(item)
		}
		return strings.Join(parts, ", ")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + formatAttribute(val[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(val)
	}
}
