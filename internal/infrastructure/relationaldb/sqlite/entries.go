package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
)

const entryColumns = `id, project_id, kind, name, slug, description, payload, lock_state,
	version, parent_id, timeline_id, active, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// CreateEntry inserts an entry together with its first version.
func (r *Repository) CreateEntry(ctx context.Context, entry *entities.CanonEntry, version *entities.CanonVersion) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
		if err := insertVersion(ctx, tx, version); err != nil {
			return err
		}
		return writeAttributes(ctx, tx, entry)
	})
}

// UpdateEntry replaces the entry's content if the stored version matches.
func (r *Repository) UpdateEntry(ctx context.Context, entry *entities.CanonEntry, expectedVersion int, version *entities.CanonVersion) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		payload, err := marshalPayload(entry.Payload)
		if err != nil {
			return err
		}

		query := `
			UPDATE canon_entries
			SET name = ?, slug = ?, description = ?, payload = ?, parent_id = ?,
				version = ?, updated_at = ?
			WHERE id = ? AND version = ? AND active = 1 AND lock_state <> 'hard_locked'
		`
		res, err := tx.ExecContext(ctx, query,
			entry.Name,
			entry.Slug,
			entry.Description,
			payload,
			nullString(entry.ParentID),
			entry.Version,
			entry.UpdatedAt,
			entry.ID,
			expectedVersion,
		)
		if err != nil {
			if isConstraintError(err) {
				return canonerr.Conflict(entry.ID, "slug already in use: "+entry.Slug, err)
			}
			return fmt.Errorf("updating entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reading rows affected: %w", err)
		}
		if n == 0 {
			return classifyMiss(ctx, tx, entry.ID)
		}

		if err := insertVersion(ctx, tx, version); err != nil {
			return err
		}
		return writeAttributes(ctx, tx, entry)
	})
}

// classifyMiss explains why a guarded update matched no row.
func classifyMiss(ctx context.Context, tx *sql.Tx, entryID string) error {
	current, err := scanEntry(tx.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM canon_entries WHERE id = ?`, entryID))
	if errors.Is(err, sql.ErrNoRows) {
		return canonerr.NotFound("entry", entryID)
	}
	if err != nil {
		return err
	}
	switch {
	case !current.Active:
		return canonerr.NotFound("entry", entryID)
	case current.IsHardLocked():
		return canonerr.Locked(entryID)
	default:
		return canonerr.Conflict(entryID, "entry was modified concurrently", nil)
	}
}

// SetLockState changes the lock state without touching the version.
func (r *Repository) SetLockState(ctx context.Context, entryID string, state entities.LockState, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE canon_entries SET lock_state = ?, updated_at = ? WHERE id = ? AND active = 1`,
		string(state), updatedAt, entryID)
	if err != nil {
		return fmt.Errorf("setting lock state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return canonerr.NotFound("entry", entryID)
	}
	return nil
}

// DeactivateEntry soft-deletes an entry unless it is hard-locked.
func (r *Repository) DeactivateEntry(ctx context.Context, entryID string, updatedAt time.Time) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE canon_entries SET active = 0, updated_at = ? WHERE id = ? AND lock_state <> 'hard_locked'`,
			updatedAt, entryID)
		if err != nil {
			return fmt.Errorf("deactivating entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reading rows affected: %w", err)
		}
		if n > 0 {
			return nil
		}
		var lock string
		err = tx.QueryRowContext(ctx, `SELECT lock_state FROM canon_entries WHERE id = ?`, entryID).Scan(&lock)
		if errors.Is(err, sql.ErrNoRows) {
			return canonerr.NotFound("entry", entryID)
		}
		if err != nil {
			return fmt.Errorf("reading lock state: %w", err)
		}
		return canonerr.Locked(entryID)
	})
}

// FindEntry finds an entry by ID.
func (r *Repository) FindEntry(ctx context.Context, entryID string) (*entities.CanonEntry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM canon_entries WHERE id = ?`, entryID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListEntries lists the active entries stored on one timeline.
func (r *Repository) ListEntries(ctx context.Context, projectID, timelineID string) ([]entities.CanonEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM canon_entries
		WHERE project_id = ? AND timeline_id = ? AND active = 1
		ORDER BY slug, id`
	return r.queryEntries(ctx, query, projectID, timelineID)
}

// ListDeletedSlugs lists the distinct slugs of inactive entries on one timeline.
func (r *Repository) ListDeletedSlugs(ctx context.Context, projectID, timelineID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT slug FROM canon_entries
		WHERE project_id = ? AND timeline_id = ? AND active = 0
		ORDER BY slug`, projectID, timelineID)
	if err != nil {
		return nil, fmt.Errorf("querying deleted slugs: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scanning slug: %w", err)
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// ListChildren lists the active entries whose parent is parentID.
func (r *Repository) ListChildren(ctx context.Context, parentID string) ([]entities.CanonEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM canon_entries
		WHERE parent_id = ? AND active = 1
		ORDER BY slug, id`
	return r.queryEntries(ctx, query, parentID)
}

// FindEntriesByAttribute lists active entries whose attribute matches value.
func (r *Repository) FindEntriesByAttribute(ctx context.Context, projectID, name, value string) ([]entities.CanonEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM canon_entries
		WHERE project_id = ? AND active = 1 AND id IN (
			SELECT entry_id FROM canon_entry_attributes WHERE name = ? AND value = ?
		)
		ORDER BY slug, id`
	return r.queryEntries(ctx, query, projectID, name, value)
}

// queryEntries is a helper to execute entry queries.
func (r *Repository) queryEntries(ctx context.Context, query string, args ...any) ([]entities.CanonEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var result []entities.CanonEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func insertEntry(ctx context.Context, tx *sql.Tx, entry *entities.CanonEntry) error {
	payload, err := marshalPayload(entry.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO canon_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		entry.ID,
		entry.ProjectID,
		string(entry.Kind),
		entry.Name,
		entry.Slug,
		entry.Description,
		payload,
		string(entry.LockState),
		entry.Version,
		nullString(entry.ParentID),
		entry.TimelineID,
		boolToInt(entry.Active),
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		if isConstraintError(err) {
			return canonerr.Conflict(entry.ID, "slug already in use: "+entry.Slug, err)
		}
		return fmt.Errorf("inserting entry: %w", err)
	}
	return nil
}

// writeAttributes replaces the detail rows of an entry.
func writeAttributes(ctx context.Context, tx *sql.Tx, entry *entities.CanonEntry) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM canon_entry_attributes WHERE entry_id = ?`, entry.ID); err != nil {
		return fmt.Errorf("clearing attributes: %w", err)
	}
	for _, name := range entry.Payload.Keys() {
		for _, value := range attributeValues(entry.Payload[name]) {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO canon_entry_attributes (entry_id, kind, name, value) VALUES (?, ?, ?, ?)`,
				entry.ID, string(entry.Kind), name, value)
			if err != nil {
				return fmt.Errorf("inserting attribute %s: %w", name, err)
			}
		}
	}
	return nil
}

// attributeValues flattens an attribute into its indexed string values.
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
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(val)}
	}
}

func scanEntry(row rowScanner) (*entities.CanonEntry, error) {
	var e entities.CanonEntry
	var kind, lock string
	var payload, parentID sql.NullString
	var active int

	err := row.Scan(
		&e.ID,
		&e.ProjectID,
		&kind,
		&e.Name,
		&e.Slug,
		&e.Description,
		&payload,
		&lock,
		&e.Version,
		&parentID,
		&e.TimelineID,
		&active,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning entry: %w", err)
	}

	e.Kind = entities.EntityKind(kind)
	e.LockState = entities.LockState(lock)
	e.ParentID = parentID.String
	e.Active = active == 1

	if e.Payload, err = unmarshalPayload(payload); err != nil {
		return nil, err
	}
	return &e, nil
}

func marshalPayload(p entities.Payload) (sql.NullString, error) {
	if len(p) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling payload: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalPayload(s sql.NullString) (entities.Payload, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var p entities.Payload
	if err := json.Unmarshal([]byte(s.String), &p); err != nil {
		return nil, fmt.Errorf("unmarshaling payload: %w", err)
	}
	return p, nil
}
