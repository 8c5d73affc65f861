// Package sqliteutil holds the startup health check for the hunterlog
// database file.
package sqliteutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// sidecarSuffixes lists the files SQLite keeps next to the main database.
var sidecarSuffixes = []string{"-wal", "-shm", "-journal"}

// Result reports the outcome of Preflight.
type Result struct {
	Fresh          bool   // No database existed yet; nothing was checked.
	Healthy        bool   // Checkpoint and quick_check passed.
	Quarantined    bool   // The file and its sidecars were renamed aside.
	QuarantinePath string // New path of the main file when Quarantined.
	Elapsed        time.Duration
	Cause          error // Checkpoint or quick_check failure that led to quarantine.
}

// Purpose: Verify an existing database before the store opens it.
// Key aspects: Bounded by timeout; a corrupt file is renamed to
// "<path>.bad-<UTC stamp>" (sidecars follow) so the store starts fresh
// instead of failing every command. A timeout is returned as an error and
// leaves the file in place.
// Upstream: store.Open.
// Downstream: checkpoint, quickCheck, quarantine.
func Preflight(ctx context.Context, path string, timeout time.Duration, logf func(string, ...any)) (Result, error) {
	var res Result
	if strings.TrimSpace(path) == "" {
		return res, errors.New("preflight: empty path")
	}
	if logf == nil {
		logf = log.Printf
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		res.Fresh = true
		res.Healthy = true
		return res, nil
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cause := check(ctx, path, timeout)
	res.Elapsed = time.Since(start)
	if cause == nil {
		res.Healthy = true
		return res, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("preflight: %s timed out after %s", path, timeout)
	}

	dest, err := quarantine(path, time.Now().UTC())
	if err != nil {
		return res, fmt.Errorf("preflight: quarantine %s: %w (cause: %v)", path, err, cause)
	}
	res.Quarantined = true
	res.QuarantinePath = dest
	res.Cause = cause
	logf("sqlite preflight: %v; moved %s to %s (elapsed %s)", cause, path, dest, res.Elapsed)
	return res, nil
}

// check opens a throwaway handle and runs checkpoint then quick_check.
func check(ctx context.Context, path string, timeout time.Duration) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, fmt.Sprintf("pragma busy_timeout=%d", timeout.Milliseconds())); err != nil {
		return fmt.Errorf("busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, "pragma wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return quickCheck(ctx, db)
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return fmt.Errorf("quick_check: %w", err)
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}

// quarantine renames the database and any sidecars present at call time.
func quarantine(path string, now time.Time) (string, error) {
	suffix := ".bad-" + now.Format("20060102T150405Z")
	for _, src := range append([]string{path}, sidecarPaths(path)...) {
		if err := os.Rename(src, src+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return path + suffix, nil
}

func sidecarPaths(path string) []string {
	out := make([]string, 0, len(sidecarSuffixes))
	for _, s := range sidecarSuffixes {
		out = append(out, path+s)
	}
	return out
}
