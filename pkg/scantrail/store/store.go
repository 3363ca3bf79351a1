// Package store provides the durable, SQLite-backed event store for scan
// provenance data.
//
// The store owns the scan_instance, scan_results, scan_config, scan_log,
// config and event_types tables. It enforces the event record invariants on
// every write and serializes all access to the underlying handle: many
// producer goroutines share one Store, writes hold an exclusive lock for the
// duration of each transaction, and the connection pool is pinned to a single
// connection so no two statements ever race on the engine.
package store

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"regexp"
	"sync"

	"modernc.org/sqlite"

	"github.com/osintlabs/scantrail/pkg/scantrail/taxonomy"
)

// SQLite has no native regex operator; REGEXP is backed by this function.
// Mirrors the semantics used by the search operation: case-insensitive,
// newline-spanning, and never failing a query on a bad pattern.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("regexp", 2,
		func(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			pattern, ok := args[0].(string)
			if !ok {
				return int64(0), nil
			}
			data, ok := args[1].(string)
			if !ok {
				return int64(0), nil
			}
			rx, err := regexp.Compile("(?is)" + pattern)
			if err != nil {
				return int64(0), nil
			}
			if rx.MatchString(data) {
				return int64(1), nil
			}
			return int64(0), nil
		})
}

var schemaQueries = []string{
	`CREATE TABLE event_types (
		event       TEXT NOT NULL PRIMARY KEY,
		event_descr TEXT NOT NULL,
		event_raw   INT NOT NULL DEFAULT 0,
		event_type  TEXT NOT NULL
	)`,
	`CREATE TABLE config (
		scope  TEXT NOT NULL,
		opt    TEXT NOT NULL,
		val    TEXT NOT NULL,
		PRIMARY KEY (scope, opt)
	)`,
	`CREATE TABLE scan_instance (
		guid        TEXT NOT NULL PRIMARY KEY,
		name        TEXT NOT NULL,
		seed_target TEXT NOT NULL,
		created     INT DEFAULT 0,
		started     INT DEFAULT 0,
		ended       INT DEFAULT 0,
		status      TEXT NOT NULL
	)`,
	`CREATE TABLE scan_log (
		scan_instance_id TEXT NOT NULL REFERENCES scan_instance(guid),
		generated        INT NOT NULL,
		component        TEXT,
		type             TEXT NOT NULL,
		message          TEXT
	)`,
	`CREATE TABLE scan_config (
		scan_instance_id TEXT NOT NULL REFERENCES scan_instance(guid),
		component        TEXT NOT NULL,
		opt              TEXT NOT NULL,
		val              TEXT NOT NULL
	)`,
	`CREATE TABLE scan_results (
		scan_instance_id  TEXT NOT NULL REFERENCES scan_instance(guid),
		hash              TEXT NOT NULL,
		type              TEXT NOT NULL REFERENCES event_types(event),
		generated         INT NOT NULL,
		confidence        INT NOT NULL DEFAULT 100,
		visibility        INT NOT NULL DEFAULT 100,
		risk              INT NOT NULL DEFAULT 0,
		module            TEXT NOT NULL,
		data              TEXT,
		false_positive    INT NOT NULL DEFAULT 0,
		source_event_hash TEXT DEFAULT 'ROOT'
	)`,
	`CREATE INDEX idx_scan_results_id ON scan_results (scan_instance_id)`,
	`CREATE INDEX idx_scan_results_type ON scan_results (scan_instance_id, type)`,
	`CREATE INDEX idx_scan_results_hash ON scan_results (scan_instance_id, hash)`,
	`CREATE INDEX idx_scan_results_srchash ON scan_results (scan_instance_id, source_event_hash)`,
	`CREATE INDEX idx_scan_logs ON scan_log (scan_instance_id)`,
}

// Store is the durable event store for one database file.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// New opens (or creates) the store at path. The path may be a file path or
// ":memory:" for testing. If the schema does not exist yet it is created and
// the event taxonomy is seeded inside one transaction; a schema failure is
// returned as a *SchemaError and the store is unusable.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StoreError{Op: "open database", Err: err}
	}

	// One connection: every statement is serialized on the engine handle.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, &StoreError{Op: "enable WAL mode", Err: err}
	}

	s := &Store{db: db}

	// Probe for an existing schema; create and seed on first use.
	if _, err := db.Exec("SELECT COUNT(*) FROM scan_config"); err != nil {
		if err := s.createSchema(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// createSchema creates all tables and indexes and seeds the event taxonomy
// in a single transaction.
func (s *Store) createSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return &SchemaError{Err: err}
	}
	defer tx.Rollback()

	for _, qry := range schemaQueries {
		if _, err := tx.Exec(qry); err != nil {
			return &SchemaError{Err: fmt.Errorf("create schema: %w", err)}
		}
	}

	for _, t := range taxonomy.Catalog() {
		if _, err := tx.Exec(`
			INSERT INTO event_types (event, event_descr, event_raw, event_type)
			VALUES (?, ?, ?, ?)
		`, t.Name, t.Description, boolToInt(t.Raw), t.Category.String()); err != nil {
			return &SchemaError{Err: fmt.Errorf("seed event types: %w", err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &SchemaError{Err: err}
	}
	return nil
}

// EventTypes returns all taxonomy entries as stored in the event_types table.
func (s *Store) EventTypes() ([]taxonomy.Type, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT event, event_descr, event_raw, event_type FROM event_types
	`)
	if err != nil {
		return nil, &StoreError{Op: "list event types", Err: err}
	}
	defer rows.Close()

	var types []taxonomy.Type
	for rows.Next() {
		var t taxonomy.Type
		var raw int
		var category string
		if err := rows.Scan(&t.Name, &t.Description, &raw, &category); err != nil {
			return nil, &StoreError{Op: "scan event type", Err: err}
		}
		t.Raw = raw != 0
		if t.Category, err = taxonomy.ParseCategory(category); err != nil {
			return nil, &StoreError{Op: "scan event type", Err: err}
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "iterate event types", Err: err}
	}
	return types, nil
}

// Close releases the database handle. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
