// Package store persists activators, parks, QSOs and the current spot
// snapshot in a single SQLite file. All access is serialized through one
// connection; every exported call is its own transaction boundary.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hunterlog/sqliteutil"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

const preflightTimeout = 2 * time.Second

var errNotOpen = errors.New("store: database is not open")

// Store wraps the SQLite handle.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option customizes Open.
type Option func(*Store)

// WithClock overrides the clock used for updated/last_triggered stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Purpose: Open (or create) the hunterlog database.
// Key aspects: Runs the SQLite preflight first so a corrupt file is
// quarantined instead of wedging startup; WAL with a single connection.
// Upstream: main wiring, tests.
// Downstream: sqliteutil.Preflight, initSchema.
func Open(path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure dir: %w", err)
	}
	if _, err := sqliteutil.Preflight(context.Background(), path, preflightTimeout, log.Printf); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		`pragma journal_mode=WAL;`,
		fmt.Sprintf(`pragma busy_timeout=%d;`, (5 * time.Second).Milliseconds()),
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", strings.TrimSpace(pragma), err)
		}
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS activators (
    activator_id INTEGER PRIMARY KEY AUTOINCREMENT,
    callsign TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    qth TEXT NOT NULL DEFAULT '',
    gravatar TEXT NOT NULL DEFAULT '',
    activations INTEGER NOT NULL DEFAULT 0,
    parks INTEGER NOT NULL DEFAULT 0,
    qsos INTEGER NOT NULL DEFAULT 0,
    attempt_activations INTEGER NOT NULL DEFAULT 0,
    attempt_parks INTEGER NOT NULL DEFAULT 0,
    attempt_qsos INTEGER NOT NULL DEFAULT 0,
    hunter_parks INTEGER NOT NULL DEFAULT 0,
    hunter_qsos INTEGER NOT NULL DEFAULT 0,
    awards INTEGER NOT NULL DEFAULT 0,
    endorsements INTEGER NOT NULL DEFAULT 0,
    updated INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS parks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    reference TEXT NOT NULL UNIQUE,
    name TEXT,
    grid4 TEXT NOT NULL DEFAULT '',
    grid6 TEXT NOT NULL DEFAULT '',
    latitude REAL NOT NULL DEFAULT 0,
    longitude REAL NOT NULL DEFAULT 0,
    park_type_desc TEXT NOT NULL DEFAULT '',
    location_desc TEXT NOT NULL DEFAULT '',
    location_name TEXT NOT NULL DEFAULT '',
    entity_name TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    hunts INTEGER NOT NULL DEFAULT 0,
    last_updated INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS qsos (
    qso_id INTEGER PRIMARY KEY AUTOINCREMENT,
    call TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT '',
    rst_sent TEXT NOT NULL DEFAULT '',
    rst_recv TEXT NOT NULL DEFAULT '',
    freq TEXT NOT NULL DEFAULT '',
    band TEXT NOT NULL DEFAULT '',
    mode TEXT NOT NULL DEFAULT '',
    qso_time INTEGER NOT NULL,
    gridsquare TEXT NOT NULL DEFAULT '',
    sig TEXT NOT NULL DEFAULT '',
    sig_info TEXT NOT NULL DEFAULT '',
    distance REAL NOT NULL DEFAULT 0,
    bearing REAL NOT NULL DEFAULT 0,
    comment TEXT NOT NULL DEFAULT '',
    from_app INTEGER NOT NULL DEFAULT 1,
    cnfm_hunt INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_qsos_call ON qsos(call);
CREATE INDEX IF NOT EXISTS idx_qsos_sig_info ON qsos(sig_info);
CREATE TABLE IF NOT EXISTS spots (
    spot_id INTEGER PRIMARY KEY,
    activator TEXT NOT NULL,
    frequency TEXT NOT NULL DEFAULT '',
    mode TEXT NOT NULL DEFAULT '',
    reference TEXT NOT NULL DEFAULT '',
    park_name TEXT NOT NULL DEFAULT '',
    spot_time TEXT NOT NULL DEFAULT '',
    spotter TEXT NOT NULL DEFAULT '',
    comments TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    invalid INTEGER,
    name TEXT NOT NULL DEFAULT '',
    location_desc TEXT NOT NULL DEFAULT '',
    grid4 TEXT NOT NULL DEFAULT '',
    grid6 TEXT NOT NULL DEFAULT '',
    latitude REAL NOT NULL DEFAULT 0,
    longitude REAL NOT NULL DEFAULT 0,
    count INTEGER NOT NULL DEFAULT 0,
    expire INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS spot_comments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    activator TEXT NOT NULL,
    park TEXT NOT NULL,
    spot_id INTEGER NOT NULL DEFAULT 0,
    spot_time TEXT NOT NULL DEFAULT '',
    spotter TEXT NOT NULL DEFAULT '',
    mode TEXT NOT NULL DEFAULT '',
    frequency TEXT NOT NULL DEFAULT '',
    band TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    comments TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_spot_comments_activation ON spot_comments(activator, park);
CREATE TABLE IF NOT EXISTS locations (
    location_id INTEGER PRIMARY KEY,
    descriptor TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    entity_id INTEGER NOT NULL DEFAULT 0,
    entity_name TEXT NOT NULL DEFAULT '',
    program_prefix TEXT NOT NULL DEFAULT '',
    parks INTEGER NOT NULL DEFAULT 0,
    latitude REAL NOT NULL DEFAULT 0,
    longitude REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_locations_descriptor ON locations(descriptor);
CREATE TABLE IF NOT EXISTS alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    loc_search TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    last_triggered INTEGER NOT NULL DEFAULT 0
);`
	_, err := db.Exec(schema)
	return err
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return errNotOpen
	}
	return nil
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().Unix()
}

func timeFromUnix(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
