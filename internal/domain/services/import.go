package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/parsers"
)

// ConflictStrategy defines how to handle entries whose slug already exists.
type ConflictStrategy string

const (
	// ConflictSkip skips entries whose slug is already taken.
	ConflictSkip ConflictStrategy = "skip"
	// ConflictFail rejects the whole import when any slug is already taken.
	ConflictFail ConflictStrategy = "fail"
)

// IsValid checks if the strategy is known.
func (c ConflictStrategy) IsValid() bool {
	return c == ConflictSkip || c == ConflictFail
}

// ImportOptions controls import behavior.
type ImportOptions struct {
	DryRun     bool             // Validate without saving
	OnConflict ConflictStrategy // How to handle existing slugs; defaults to skip
	TimelineID string           // Target timeline; empty for main
	Actor      string
}

// ImportError represents an error for a specific entry during import.
type ImportError struct {
	Line    int    // Line number (1-indexed, 0 if unknown)
	Field   string // Which field has the error
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ImportError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// ImportResult contains the result of an import operation.
type ImportResult struct {
	Imported int
	Skipped  int
	Errors   []ImportError
}

// ImportService seeds canon from external files.
type ImportService struct {
	canon  *CanonService
	store  ports.CanonStore
	logger *slog.Logger
}

// NewImportService creates a new import service.
func NewImportService(canon *CanonService, store ports.CanonStore, logger *slog.Logger) *ImportService {
	return &ImportService{
		canon:  canon,
		store:  store,
		logger: orDiscard(logger),
	}
}

// plannedEntry is a validated row waiting to be created.
type plannedEntry struct {
	raw     parsers.RawEntry
	line    int
	slug    string
	lock    entities.LockState
	payload entities.Payload
	parent  string // Slug of the parent entry
}

// Import validates raw entries and creates the valid ones in file order.
// Parents are resolved by slug against existing canon and earlier rows.
func (s *ImportService) Import(ctx context.Context, projectID string, raws []parsers.RawEntry, opts ImportOptions) (*ImportResult, error) {
	if opts.OnConflict == "" {
		opts.OnConflict = ConflictSkip
	}
	if !opts.OnConflict.IsValid() {
		return nil, fmt.Errorf("unknown conflict strategy %q", opts.OnConflict)
	}

	timelineID, err := s.canon.entryTimelineID(ctx, projectID, opts.TimelineID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.ListEntries(ctx, projectID, timelineID)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	// slug -> entry id; planned rows map to "" until created
	known := make(map[string]string, len(existing))
	for i := range existing {
		known[existing[i].Slug] = existing[i].ID
	}

	result := &ImportResult{}
	planned, conflicts := s.plan(raws, known, opts.OnConflict, result)

	if conflicts > 0 && opts.OnConflict == ConflictFail {
		return result, nil
	}
	if opts.DryRun {
		result.Imported = len(planned)
		return result, nil
	}

	for i := range planned {
		p := &planned[i]
		parentID := ""
		if p.parent != "" {
			parentID = known[p.parent]
			if parentID == "" {
				result.Errors = append(result.Errors, ImportError{
					Line: p.line, Field: "parent", Value: p.raw.Parent,
					Message: fmt.Sprintf("parent %q was not imported", p.raw.Parent),
				})
				continue
			}
		}

		entry, err := s.canon.CreateEntry(ctx, NewEntry{
			ProjectID:   projectID,
			Kind:        entities.EntityKind(p.raw.Kind),
			Name:        p.raw.Name,
			Description: p.raw.Description,
			Payload:     p.payload,
			LockState:   p.lock,
			ParentID:    parentID,
			TimelineID:  opts.TimelineID,
			Actor:       opts.Actor,
		})
		if err != nil {
			result.Errors = append(result.Errors, ImportError{Line: p.line, Field: "name", Value: p.raw.Name, Message: err.Error()})
			continue
		}
		known[p.slug] = entry.ID
		result.Imported++
	}

	s.logger.InfoContext(ctx, "import finished",
		"project_id", projectID,
		"imported", result.Imported,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

// plan validates every row and returns the rows to create and the number of
// rows whose slug already exists.
func (s *ImportService) plan(raws []parsers.RawEntry, known map[string]string, onConflict ConflictStrategy, result *ImportResult) ([]plannedEntry, int) {
	planned := make([]plannedEntry, 0, len(raws))
	conflicts := 0
	inFile := make(map[string]int)

	for i := range raws {
		raw := raws[i]
		line := raw.LineNum
		if line == 0 {
			line = i + 1
		}

		p, ierr := validateRawEntry(&raw, line)
		if ierr != nil {
			result.Errors = append(result.Errors, *ierr)
			continue
		}

		if first, dup := inFile[p.slug]; dup {
			result.Errors = append(result.Errors, ImportError{
				Line: line, Field: "name", Value: raw.Name,
				Message: fmt.Sprintf("duplicate of line %d", first),
			})
			continue
		}
		if _, exists := known[p.slug]; exists {
			conflicts++
			if onConflict == ConflictSkip {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, ImportError{
				Line: line, Field: "name", Value: raw.Name,
				Message: fmt.Sprintf("entry %q already exists", p.slug),
			})
			continue
		}

		if p.parent != "" {
			_, existingParent := known[p.parent]
			_, earlierParent := inFile[p.parent]
			if !existingParent && !earlierParent {
				result.Errors = append(result.Errors, ImportError{
					Line: line, Field: "parent", Value: raw.Parent,
					Message: fmt.Sprintf("parent %q not found in canon or earlier rows", raw.Parent),
				})
				continue
			}
		}

		inFile[p.slug] = line
		planned = append(planned, *p)
	}
	return planned, conflicts
}

// validateRawEntry validates a single raw entry.
func validateRawEntry(raw *parsers.RawEntry, lineNum int) (*plannedEntry, *ImportError) {
	if raw.Kind == "" {
		return nil, &ImportError{Line: lineNum, Field: "kind", Message: "missing required field: kind"}
	}
	kind := entities.EntityKind(raw.Kind)
	if !kind.IsValid() {
		return nil, &ImportError{
			Line:    lineNum,
			Field:   "kind",
			Value:   raw.Kind,
			Message: fmt.Sprintf("invalid kind %q (valid: %s)", raw.Kind, strings.Join(entities.KindNames(), ", ")),
		}
	}

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return nil, &ImportError{Line: lineNum, Field: "name", Message: "missing required field: name"}
	}
	slug := entities.Slugify(name)
	if slug == "" {
		return nil, &ImportError{Line: lineNum, Field: "name", Value: raw.Name, Message: "name has no usable characters"}
	}

	lock := entities.LockState(raw.Lock)
	if lock == "" {
		lock = entities.LockUnlocked
	}
	if !lock.IsValid() {
		return nil, &ImportError{
			Line:    lineNum,
			Field:   "lock",
			Value:   raw.Lock,
			Message: fmt.Sprintf("invalid lock %q (valid: unlocked, soft_locked, hard_locked)", raw.Lock),
		}
	}

	payload := entities.Payload(raw.Attributes)
	if err := payload.Validate(kind); err != nil {
		return nil, &ImportError{Line: lineNum, Field: "attributes", Message: err.Error()}
	}

	parent := ""
	if raw.Parent != "" {
		parent = entities.Slugify(raw.Parent)
		if parent == slug {
			return nil, &ImportError{Line: lineNum, Field: "parent", Value: raw.Parent, Message: "entry cannot be its own parent"}
		}
	}

	return &plannedEntry{raw: *raw, line: lineNum, slug: slug, lock: lock, payload: payload, parent: parent}, nil
}
