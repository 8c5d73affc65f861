package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"hunterlog/pota"
	"hunterlog/strutil"
)

// Activator is the cached stats row for one operator, keyed by base call.
type Activator struct {
	ID                 int64
	Callsign           string
	Name               string
	QTH                string
	Gravatar           string
	Activations        int
	Parks              int
	QSOs               int
	AttemptActivations int
	AttemptParks       int
	AttemptQSOs        int
	HunterParks        int
	HunterQSOs         int
	Awards             int
	Endorsements       int
	Updated            time.Time
}

const activatorColumns = `activator_id, callsign, name, qth, gravatar,
    activations, parks, qsos, attempt_activations, attempt_parks, attempt_qsos,
    hunter_parks, hunter_qsos, awards, endorsements, updated`

// GetActivator returns the row for call's base callsign, or nil when absent.
func (s *Store) GetActivator(call string) (*Activator, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	base := strutil.BaseCall(call)
	if base == "" {
		return nil, nil
	}
	row := s.db.QueryRow(`SELECT `+activatorColumns+` FROM activators WHERE callsign = ?`, base)
	return scanActivator(row)
}

// GetActivatorByID returns the row with the given id, or nil when absent.
func (s *Store) GetActivatorByID(id int64) (*Activator, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	row := s.db.QueryRow(`SELECT `+activatorColumns+` FROM activators WHERE activator_id = ?`, id)
	return scanActivator(row)
}

// ActivatorName returns the cached operator name for call. The boolean is
// false when no row exists for the base callsign.
func (s *Store) ActivatorName(call string) (string, bool, error) {
	a, err := s.GetActivator(call)
	if err != nil || a == nil {
		return "", false, err
	}
	return a.Name, true, nil
}

// Purpose: Insert or refresh an operator from the stats payload.
// Key aspects: Keyed by the base callsign so "W1AW/P" and "W1AW" share a row;
// stamps updated with the store clock.
// Upstream: freshness.Policy.Activator.
// Downstream: activators table.
func (s *Store) UpsertActivatorStats(stats pota.ActivatorStats) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	base := strutil.BaseCall(stats.Callsign)
	if base == "" {
		return 0, errors.New("store: activator stats without callsign")
	}
	var id int64
	err := s.db.QueryRow(`
INSERT INTO activators (callsign, name, qth, gravatar,
    activations, parks, qsos, attempt_activations, attempt_parks, attempt_qsos,
    hunter_parks, hunter_qsos, awards, endorsements, updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(callsign) DO UPDATE SET
    name = excluded.name,
    qth = excluded.qth,
    gravatar = excluded.gravatar,
    activations = excluded.activations,
    parks = excluded.parks,
    qsos = excluded.qsos,
    attempt_activations = excluded.attempt_activations,
    attempt_parks = excluded.attempt_parks,
    attempt_qsos = excluded.attempt_qsos,
    hunter_parks = excluded.hunter_parks,
    hunter_qsos = excluded.hunter_qsos,
    awards = excluded.awards,
    endorsements = excluded.endorsements,
    updated = excluded.updated
RETURNING activator_id`,
		base, strings.TrimSpace(stats.Name), strings.TrimSpace(stats.QTH), stats.Gravatar,
		stats.Activator.Activations, stats.Activator.Parks, stats.Activator.QSOs,
		stats.Attempts.Activations, stats.Attempts.Parks, stats.Attempts.QSOs,
		stats.Hunter.Parks, stats.Hunter.QSOs, stats.Awards, stats.Endorsements,
		s.now().UTC().Unix(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: upsert activator %s: %w", base, err)
	}
	return id, nil
}

// ActivatorHunts counts logged QSOs with call's base callsign.
func (s *Store) ActivatorHunts(call string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	base := strutil.BaseCall(call)
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM qsos
WHERE call = ? OR call LIKE ? OR call LIKE ? OR call LIKE ?`,
		base, base+"/%", "%/"+base, "%/"+base+"/%").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: activator hunts %s: %w", base, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivator(row rowScanner) (*Activator, error) {
	var a Activator
	var updated int64
	err := row.Scan(&a.ID, &a.Callsign, &a.Name, &a.QTH, &a.Gravatar,
		&a.Activations, &a.Parks, &a.QSOs,
		&a.AttemptActivations, &a.AttemptParks, &a.AttemptQSOs,
		&a.HunterParks, &a.HunterQSOs, &a.Awards, &a.Endorsements, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan activator: %w", err)
	}
	a.Updated = timeFromUnix(updated)
	return &a, nil
}
