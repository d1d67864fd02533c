package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
)

const versionColumns = `id, entry_id, version, name, description, payload, actor, reason, change_type, created_at`

// FindVersion finds one version of an entry.
func (r *Repository) FindVersion(ctx context.Context, entryID string, version int) (*entities.CanonVersion, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM canon_versions WHERE entry_id = ? AND version = ?`,
		entryID, version)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// FindVersionsByEntry finds all versions of an entry, ordered by version ascending.
func (r *Repository) FindVersionsByEntry(ctx context.Context, entryID string) ([]entities.CanonVersion, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM canon_versions WHERE entry_id = ? ORDER BY version ASC`,
		entryID)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	versions := make([]entities.CanonVersion, 0, 16)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

func insertVersion(ctx context.Context, tx *sql.Tx, version *entities.CanonVersion) error {
	payload, err := marshalPayload(version.Snapshot.Payload)
	if err != nil {
		return err
	}

	query := `INSERT INTO canon_versions (` + versionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		version.ID,
		version.EntryID,
		version.Version,
		version.Snapshot.Name,
		version.Snapshot.Description,
		payload,
		nullString(version.Actor),
		version.Reason,
		string(version.ChangeType),
		version.CreatedAt,
	)
	if err != nil {
		if isConstraintError(err) {
			return canonerr.Conflict(version.EntryID, fmt.Sprintf("version %d already recorded", version.Version), err)
		}
		return fmt.Errorf("saving version: %w", err)
	}
	return nil
}

func scanVersion(row rowScanner) (*entities.CanonVersion, error) {
	var v entities.CanonVersion
	var changeType string
	var payload, actor, reason sql.NullString

	err := row.Scan(
		&v.ID,
		&v.EntryID,
		&v.Version,
		&v.Snapshot.Name,
		&v.Snapshot.Description,
		&payload,
		&actor,
		&reason,
		&changeType,
		&v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning version: %w", err)
	}

	v.ChangeType = entities.ChangeType(changeType)
	v.Actor = actor.String
	v.Reason = reason.String

	if v.Snapshot.Payload, err = unmarshalPayload(payload); err != nil {
		return nil, err
	}
	return &v, nil
}
