package index

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path      string
	Title     string
	Checksum  string
	Tags      []string
	UpdatedAt time.Time
}

// Move is one journalled source→destination relocation.
type Move struct {
	MigrationID string
	Source      string
	Destination string
	Checksum    string
	MovedAt     time.Time
}

// UpsertNote inserts or replaces a note row.
func (db *DB) UpsertNote(ctx context.Context, n NoteRow) error {
	tagsJSON, err := json.Marshal(n.Tags)
	if err != nil {
		return fmt.Errorf("index: encode tags: %w", err)
	}
	if n.Tags == nil {
		tagsJSON = []byte("[]")
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO notes (path, title, checksum, tags, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			updated_at = excluded.updated_at
	`, n.Path, n.Title, n.Checksum, string(tagsJSON), n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}
	return nil
}

// DeleteNote removes a note row.
func (db *DB) DeleteNote(ctx context.Context, path string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM notes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return nil
}

// AllChecksums returns path → checksum for every indexed note.
func (db *DB) AllChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// CountNotes returns the number of indexed notes.
func (db *DB) CountNotes(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count notes: %w", err)
	}
	return n, nil
}

// RecordMove journals a completed move. Recording the same source twice for
// one migration keeps the latest destination.
func (db *DB) RecordMove(ctx context.Context, m Move) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO moves (migration_id, source, destination, checksum, moved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(migration_id, source) DO UPDATE SET
			destination = excluded.destination,
			checksum    = excluded.checksum,
			moved_at    = excluded.moved_at
	`, m.MigrationID, m.Source, m.Destination, m.Checksum, m.MovedAt.UTC())
	if err != nil {
		return fmt.Errorf("index: record move: %w", err)
	}
	return nil
}

// Moves lists the journal of one migration ordered by source.
func (db *DB) Moves(ctx context.Context, migrationID string) ([]Move, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT migration_id, source, destination, checksum, moved_at
		FROM moves
		WHERE migration_id = ?
		ORDER BY source
	`, migrationID)
	if err != nil {
		return nil, fmt.Errorf("index: list moves: %w", err)
	}
	defer rows.Close()

	var out []Move
	for rows.Next() {
		var m Move
		if err := rows.Scan(&m.MigrationID, &m.Source, &m.Destination, &m.Checksum, &m.MovedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
