// Package usage records which uploaded attachments have been sent, so a
// cleanup job can tell used files from abandoned ones.
package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/sqlite"
)

// Ledger is a SQLite-backed attachment usage table.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Entry is one row of the ledger.
type Entry struct {
	Key       string
	SessionID string
	UsedAt    time.Time
	Count     int
}

// Open opens (or creates) the ledger database at path. Use ":memory:" for a
// throwaway ledger.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open usage ledger: %w", err)
	}
	// one writer; SQLite serializes anyway and :memory: is per-connection
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS attachment_usage (
		attachment_key TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		used_at INTEGER NOT NULL,
		use_count INTEGER NOT NULL DEFAULT 1
	);`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create attachment_usage table: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// MarkUsed records that key was sent by sessionID. Repeated marks bump the
// count and keep the latest session.
func (l *Ledger) MarkUsed(ctx context.Context, key, sessionID string) error {
	if key == "" {
		return nil
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO attachment_usage (attachment_key, session_id, used_at, use_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(attachment_key) DO UPDATE SET
			session_id = excluded.session_id,
			used_at = excluded.used_at,
			use_count = attachment_usage.use_count + 1;`,
		key, sessionID, l.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("mark attachment %s used: %w", key, err)
	}
	return nil
}

// IsUsed reports whether key has been marked.
func (l *Ledger) IsUsed(ctx context.Context, key string) (bool, error) {
	_, err := l.Lookup(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Lookup returns the ledger row for key, or sql.ErrNoRows.
func (l *Ledger) Lookup(ctx context.Context, key string) (Entry, error) {
	var (
		e  Entry
		ms int64
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT attachment_key, session_id, used_at, use_count FROM attachment_usage WHERE attachment_key = ?`, key,
	).Scan(&e.Key, &e.SessionID, &ms, &e.Count)
	if err != nil {
		return Entry{}, err
	}
	e.UsedAt = time.UnixMilli(ms).UTC()
	return e, nil
}

// Ping checks the database connection.
func (l *Ledger) Ping(ctx context.Context) error { return l.db.PingContext(ctx) }

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }
