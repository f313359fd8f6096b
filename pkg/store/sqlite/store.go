// Package sqlite provides a durable LevelStore set over a single SQLite
// database using modernc.org/sqlite (no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	hier "github.com/phamhung075/4genthub-sub021"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS contexts (
	owner_user_id TEXT NOT NULL,
	level         TEXT NOT NULL,
	id            TEXT NOT NULL,
	parent_id     TEXT NOT NULL DEFAULT '',
	data          TEXT NOT NULL DEFAULT '{}',
	version       INTEGER NOT NULL DEFAULT 1,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	PRIMARY KEY (owner_user_id, level, id)
);
CREATE INDEX IF NOT EXISTS idx_contexts_parent
	ON contexts (owner_user_id, level, parent_id);
`

// Open opens (creating if needed) the database at path and bootstraps the
// schema. Use ":memory:" for an ephemeral database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// modernc's driver serializes writes per connection; a single
	// connection avoids SQLITE_BUSY on concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}
	return db, nil
}

// NewStores binds the four per-level views over db.
func NewStores(db *sql.DB) hier.StoreSet {
	return hier.StoreSet{
		Global:  &levelStore{db: db, level: hier.LevelGlobal},
		Project: &levelStore{db: db, level: hier.LevelProject},
		Branch:  &levelStore{db: db, level: hier.LevelBranch},
		Task:    &levelStore{db: db, level: hier.LevelTask},
	}
}

type levelStore struct {
	db    *sql.DB
	level hier.Level
}

func (s *levelStore) Level() hier.Level {
	return s.level
}

func (s *levelStore) Get(ctx context.Context, owner, id string) (*hier.Context, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, parent_id, data, version, created_at, updated_at
		FROM contexts
		WHERE owner_user_id = ? AND level = ? AND id = ?`,
		owner, s.level.String(), id)
	record, err := s.scan(row, owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %q (owner %q)", hier.ErrNotFound, s.level, id, owner)
	}
	return record, err
}

func (s *levelStore) Create(ctx context.Context, record *hier.Context) (*hier.Context, error) {
	if record == nil || record.ID == "" || record.OwnerUserID == "" {
		return nil, fmt.Errorf("hier: store create requires id and owner")
	}
	data := record.Data
	if data == nil {
		data = hier.Data{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode data: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if s.level == hier.LevelGlobal {
		var existing int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM contexts
			WHERE owner_user_id = ? AND level = ?`,
			record.OwnerUserID, s.level.String()).Scan(&existing); err != nil {
			return nil, err
		}
		if existing > 0 {
			return nil, fmt.Errorf("%w: owner %q already has a global context",
				hier.ErrAlreadyExists, record.OwnerUserID)
		}
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO contexts (owner_user_id, level, id, parent_id, data, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		record.OwnerUserID, s.level.String(), record.ID, record.ParentID,
		string(payload), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s %q (owner %q)",
				hier.ErrAlreadyExists, s.level, record.ID, record.OwnerUserID)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	stored := record.Clone()
	stored.Level = s.level
	stored.Data = data.Clone()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	return stored, nil
}

func (s *levelStore) Update(ctx context.Context, owner, id string, patch hier.Data, expectedVersion int64) (*hier.Context, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, parent_id, data, version, created_at, updated_at
		FROM contexts
		WHERE owner_user_id = ? AND level = ? AND id = ?`,
		owner, s.level.String(), id)
	record, err := s.scan(row, owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %q (owner %q)", hier.ErrNotFound, s.level, id, owner)
	}
	if err != nil {
		return nil, err
	}
	if expectedVersion > 0 && record.Version != expectedVersion {
		return nil, fmt.Errorf("%w: %s %q expected version %d, stored %d",
			hier.ErrConcurrentModification, s.level, id, expectedVersion, record.Version)
	}

	record.Data = hier.ApplyPatch(record.Data, patch)
	payload, err := json.Marshal(record.Data)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode data: %w", err)
	}
	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE contexts SET data = ?, version = version + 1, updated_at = ?
		WHERE owner_user_id = ? AND level = ? AND id = ? AND version = ?`,
		string(payload), now.Format(time.RFC3339Nano),
		owner, s.level.String(), id, record.Version)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: %s %q", hier.ErrConcurrentModification, s.level, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	record.Version++
	record.UpdatedAt = now
	return record, nil
}

func (s *levelStore) Delete(ctx context.Context, owner, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM contexts
		WHERE owner_user_id = ? AND level = ? AND id = ?`,
		owner, s.level.String(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %q (owner %q)", hier.ErrNotFound, s.level, id, owner)
	}
	return nil
}

func (s *levelStore) List(ctx context.Context, owner string, filter hier.ListFilter) ([]*hier.Context, error) {
	query := `
		SELECT id, parent_id, data, version, created_at, updated_at
		FROM contexts
		WHERE owner_user_id = ? AND level = ?`
	args := []any{owner, s.level.String()}
	if filter.ParentID != "" {
		query += ` AND parent_id = ?`
		args = append(args, filter.ParentID)
	}
	if len(filter.IDs) > 0 {
		query += ` AND id IN (?` + strings.Repeat(",?", len(filter.IDs)-1) + `)`
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]*hier.Context, 0)
	for rows.Next() {
		record, err := s.scan(rows, owner)
		if err != nil {
			return nil, err
		}
		matches = append(matches, record)
	}
	return matches, rows.Err()
}

func (s *levelStore) Exists(ctx context.Context, owner, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM contexts
		WHERE owner_user_id = ? AND level = ? AND id = ?`,
		owner, s.level.String(), id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *levelStore) scan(row scanner, owner string) (*hier.Context, error) {
	var (
		record    hier.Context
		payload   string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&record.ID, &record.ParentID, &payload, &record.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	record.Level = s.level
	record.OwnerUserID = owner
	if err := json.Unmarshal([]byte(payload), &record.Data); err != nil {
		return nil, fmt.Errorf("sqlite: decode data for %s %q: %w", s.level, record.ID, err)
	}
	var err error
	if record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("sqlite: decode created_at for %s %q: %w", s.level, record.ID, err)
	}
	if record.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: decode updated_at for %s %q: %w", s.level, record.ID, err)
	}
	return &record, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc surfaces SQLITE_CONSTRAINT_PRIMARYKEY (1555) in the message.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: contexts")
}
