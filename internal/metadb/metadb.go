// Package metadb persists job metadata. Writes go through a generic
// upsert keyed on an `id` column; execution errors are logged and
// reported as false rather than failing the job.
package metadb

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a per-job connection to the metadata database.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens the metadata database at path and ensures the schema.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, log: log}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS images (
            id TEXT PRIMARY KEY,
            sequence_id TEXT,
            file TEXT,
            status TEXT,
            solved BOOLEAN,
            source_count INTEGER,
            obstime TEXT,
            exptime REAL,
            airmass REAL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS job_results (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            object_key TEXT NOT NULL,
            status TEXT NOT NULL,
            source_count INTEGER,
            duration_ms INTEGER,
            error TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_job_results_created ON job_results(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert inserts fields into table, updating every non-id column on
// an id conflict. It returns false and logs on any execution error
// rather than raising; metadata loss is never fatal for a job.
func (s *Store) Upsert(table string, fields map[string]any) bool {
	if len(fields) == 0 {
		return false
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([]any, 0, len(names))
	holders := make([]string, 0, len(names))
	updates := make([]string, 0, len(names))
	for _, name := range names {
		values = append(values, fields[name])
		holders = append(holders, "?")
		if name != "id" {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", name, name))
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s;",
		table, strings.Join(names, ","), strings.Join(holders, ","), strings.Join(updates, ", "))

	if _, err := s.db.Exec(query, values...); err != nil {
		s.log.Warn("metadata upsert failed", "table", table, "error", err, "sql", query)
		return false
	}
	return true
}

// JobResult is one recorded terminal outcome.
type JobResult struct {
	ObjectKey   string    `json:"object_key"`
	Status      string    `json:"status"`
	SourceCount int       `json:"source_count"`
	DurationMS  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecordResult appends one job outcome.
func (s *Store) RecordResult(r JobResult) bool {
	_, err := s.db.Exec(
		`INSERT INTO job_results (object_key, status, source_count, duration_ms, error) VALUES (?, ?, ?, ?, ?);`,
		r.ObjectKey, r.Status, r.SourceCount, r.DurationMS, r.Error)
	if err != nil {
		s.log.Warn("result insert failed", "object_key", r.ObjectKey, "error", err)
		return false
	}
	return true
}

// RecentResults returns the latest job outcomes up to limit.
func (s *Store) RecentResults(limit int) ([]JobResult, error) {
	rows, err := s.db.Query(
		`SELECT object_key, status, source_count, duration_ms, error, created_at
         FROM job_results ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobResult
	for rows.Next() {
		var r JobResult
		var errMsg sql.NullString
		var created any
		if err := rows.Scan(&r.ObjectKey, &r.Status, &r.SourceCount, &r.DurationMS, &errMsg, &created); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			r.Error = errMsg.String
		}
		r.CreatedAt = parseTimestamp(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// parseTimestamp tolerates the driver returning CURRENT_TIMESTAMP
// columns as either time.Time or their SQLite text form.
func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if ts, err := time.Parse("2006-01-02 15:04:05", t); err == nil {
			return ts
		}
	case []byte:
		if ts, err := time.Parse("2006-01-02 15:04:05", string(t)); err == nil {
			return ts
		}
	}
	return time.Time{}
}
