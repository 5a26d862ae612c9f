// Package audit persists gate decisions in a local SQLite database, one
// row per decision, so operators can reconstruct what the agent did
// without access to the Grafana servers.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dash-gate/dashgate/internal/domain/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          TEXT NOT NULL,
	tool        TEXT NOT NULL,
	operation   TEXT NOT NULL,
	cluster     TEXT NOT NULL,
	kind        TEXT NOT NULL,
	uid         TEXT NOT NULL,
	decision    TEXT NOT NULL,
	reason      TEXT NOT NULL,
	fingerprint TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log (ts);
CREATE INDEX IF NOT EXISTS idx_audit_log_uid ON audit_log (uid);
`

const insertStmt = `
INSERT INTO audit_log (ts, tool, operation, cluster, kind, uid, decision, reason, fingerprint)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// SQLiteStore implements audit.Store on a single SQLite file. database/sql
// serializes access, so concurrent appends need no extra locking here.
type SQLiteStore struct {
	db     *sql.DB
	insert *sql.Stmt
}

// Compile-time check.
var _ audit.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the audit database at path and
// ensures the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database %q: %w", path, err)
	}
	// The driver is file-based; a single connection avoids SQLITE_BUSY on
	// concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	insert, err := db.Prepare(insertStmt)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare audit insert: %w", err)
	}
	return &SQLiteStore{db: db, insert: insert}, nil
}

// Append implements audit.Store.
func (s *SQLiteStore) Append(ctx context.Context, rec audit.Record) error {
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.insert.ExecContext(ctx,
		ts.UTC().Format(time.RFC3339Nano),
		rec.Tool,
		rec.Operation,
		rec.Cluster,
		rec.Kind,
		rec.UID,
		string(rec.Decision),
		rec.Reason,
		rec.Fingerprint,
	)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first. Used by tests and
// operator tooling.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, tool, operation, cluster, kind, uid, decision, reason, fingerprint
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []audit.Record
	for rows.Next() {
		var rec audit.Record
		var ts, decision string
		if err := rows.Scan(&ts, &rec.Tool, &rec.Operation, &rec.Cluster,
			&rec.Kind, &rec.UID, &decision, &rec.Reason, &rec.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Time, _ = time.Parse(time.RFC3339Nano, ts)
		rec.Decision = audit.Decision(decision)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close implements audit.Store.
func (s *SQLiteStore) Close() error {
	_ = s.insert.Close()
	return s.db.Close()
}
