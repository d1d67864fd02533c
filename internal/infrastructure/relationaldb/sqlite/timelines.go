package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
)

const timelineColumns = `id, project_id, name, description, is_main, parent_id, fork_point_entry_id, created_at`

// SaveTimeline inserts a timeline.
func (r *Repository) SaveTimeline(ctx context.Context, timeline *entities.Timeline) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return insertTimeline(ctx, tx, timeline)
	})
}

// FindTimeline finds a timeline by ID.
func (r *Repository) FindTimeline(ctx context.Context, timelineID string) (*entities.Timeline, error) {
	t, err := scanTimeline(r.db.QueryRowContext(ctx,
		`SELECT `+timelineColumns+` FROM timelines WHERE id = ?`, timelineID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindMainTimeline finds the main timeline of a project.
func (r *Repository) FindMainTimeline(ctx context.Context, projectID string) (*entities.Timeline, error) {
	t, err := scanTimeline(r.db.QueryRowContext(ctx,
		`SELECT `+timelineColumns+` FROM timelines WHERE project_id = ? AND is_main = 1`, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListTimelines lists a project's timelines, main first then by creation time.
func (r *Repository) ListTimelines(ctx context.Context, projectID string) ([]entities.Timeline, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+timelineColumns+` FROM timelines WHERE project_id = ? ORDER BY is_main DESC, created_at, id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("querying timelines: %w", err)
	}
	defer rows.Close()

	var result []entities.Timeline
	for rows.Next() {
		t, err := scanTimeline(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

// CreateFork persists a timeline and the entry copied onto it atomically.
func (r *Repository) CreateFork(ctx context.Context, timeline *entities.Timeline, entry *entities.CanonEntry, version *entities.CanonVersion) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertTimeline(ctx, tx, timeline); err != nil {
			return err
		}
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
		if err := insertVersion(ctx, tx, version); err != nil {
			return err
		}
		return writeAttributes(ctx, tx, entry)
	})
}

func insertTimeline(ctx context.Context, tx *sql.Tx, t *entities.Timeline) error {
	query := `INSERT INTO timelines (` + timelineColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, query,
		t.ID,
		t.ProjectID,
		t.Name,
		nullString(t.Description),
		boolToInt(t.IsMain),
		nullString(t.ParentID),
		nullString(t.ForkPointEntryID),
		t.CreatedAt,
	)
	if err != nil {
		if isConstraintError(err) {
			if t.IsMain {
				return canonerr.Conflict(t.ID, "project already has a main timeline", err)
			}
			return canonerr.Conflict(t.ID, "timeline already exists", err)
		}
		return fmt.Errorf("saving timeline: %w", err)
	}
	return nil
}

func scanTimeline(row rowScanner) (*entities.Timeline, error) {
	var t entities.Timeline
	var description, parentID, forkPoint sql.NullString
	var isMain int

	err := row.Scan(
		&t.ID,
		&t.ProjectID,
		&t.Name,
		&description,
		&isMain,
		&parentID,
		&forkPoint,
		&t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning timeline: %w", err)
	}

	t.Description = description.String
	t.IsMain = isMain == 1
	t.ParentID = parentID.String
	t.ForkPointEntryID = forkPoint.String
	return &t, nil
}
