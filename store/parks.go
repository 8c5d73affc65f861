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

// Park is the local row for a reference code. Name is NULL until metadata
// has been fetched at least once.
type Park struct {
	ID           int64
	Reference    string
	Name         sql.NullString
	Grid4        string
	Grid6        string
	Latitude     float64
	Longitude    float64
	ParkTypeDesc string
	LocationDesc string
	LocationName string
	EntityName   string
	Active       bool
	Hunts        int
	LastUpdated  time.Time
}

// HasName reports whether metadata has been filled in.
func (p Park) HasName() bool {
	return p.Name.Valid && strings.TrimSpace(p.Name.String) != ""
}

const parkColumns = `id, reference, name, grid4, grid6, latitude, longitude,
    park_type_desc, location_desc, location_name, entity_name, active, hunts, last_updated`

func normalizeRef(ref string) string {
	return strutil.NormalizeUpper(ref)
}

// GetPark returns the row for ref, or nil when absent.
func (s *Store) GetPark(ref string) (*Park, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	row := s.db.QueryRow(`SELECT `+parkColumns+` FROM parks WHERE reference = ?`, normalizeRef(ref))
	p, err := scanPark(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// Parks returns every park row ordered by reference.
func (s *Store) Parks() ([]Park, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT ` + parkColumns + ` FROM parks ORDER BY reference`)
	if err != nil {
		return nil, fmt.Errorf("store: list parks: %w", err)
	}
	defer rows.Close()
	var out []Park
	for rows.Next() {
		p, err := scanPark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateParkData writes metadata for p.Reference, creating the row if needed.
// The hunt count is left untouched.
func (s *Store) UpdateParkData(p pota.Park) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.inTx(func(tx *sql.Tx) error {
		return s.upsertParkData(tx, p)
	})
}

func (s *Store) upsertParkData(tx *sql.Tx, p pota.Park) error {
	ref := normalizeRef(p.Reference)
	if ref == "" {
		return errors.New("store: park without reference")
	}
	var name any
	if n := strings.TrimSpace(p.Name); n != "" {
		name = n
	}
	_, err := tx.Exec(`
INSERT INTO parks (reference, name, grid4, grid6, latitude, longitude,
    park_type_desc, location_desc, location_name, entity_name, active, last_updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(reference) DO UPDATE SET
    name = COALESCE(excluded.name, parks.name),
    grid4 = excluded.grid4,
    grid6 = excluded.grid6,
    latitude = excluded.latitude,
    longitude = excluded.longitude,
    park_type_desc = excluded.park_type_desc,
    location_desc = excluded.location_desc,
    location_name = excluded.location_name,
    entity_name = excluded.entity_name,
    active = excluded.active,
    last_updated = excluded.last_updated`,
		ref, name, p.Grid4, p.Grid6, p.Latitude, p.Longitude,
		p.ParkTypeDesc, p.LocationDesc, p.LocationName, p.EntityName,
		boolToInt(p.Active != 0), s.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store: update park %s: %w", ref, err)
	}
	return nil
}

// Purpose: Count one more hunt of ref.
// Key aspects: When meta is non-nil its fields are written first in the same
// transaction. With meta nil a missing row is still created, leaving name
// NULL for the catch-up pass.
// Upstream: hunt.Pipeline.LogContact.
// Downstream: upsertParkData, parks table.
func (s *Store) IncParkHunt(ref string, meta *pota.Park) error {
	if err := s.ready(); err != nil {
		return err
	}
	ref = normalizeRef(ref)
	if ref == "" {
		return errors.New("store: empty park reference")
	}
	return s.inTx(func(tx *sql.Tx) error {
		if meta != nil {
			m := *meta
			m.Reference = ref
			if err := s.upsertParkData(tx, m); err != nil {
				return err
			}
		}
		_, err := tx.Exec(`
INSERT INTO parks (reference, hunts) VALUES (?, 1)
ON CONFLICT(reference) DO UPDATE SET hunts = parks.hunts + 1`, ref)
		if err != nil {
			return fmt.Errorf("store: inc hunts %s: %w", ref, err)
		}
		return nil
	})
}

// Purpose: Overwrite hunt counts from an authoritative source.
// Key aspects: Single transaction; counts replace, never add. Parks not in
// counts keep their current value. Unknown references get a NULL-name row.
// Upstream: hunt.Reconciler.ApplyCounts, park import.
// Downstream: parks table.
func (s *Store) SetParkHunts(counts map[string]int) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	applied := 0
	err := s.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
INSERT INTO parks (reference, hunts) VALUES (?, ?)
ON CONFLICT(reference) DO UPDATE SET hunts = excluded.hunts`)
		if err != nil {
			return fmt.Errorf("store: prepare hunts: %w", err)
		}
		defer stmt.Close()
		for ref, n := range counts {
			ref = normalizeRef(ref)
			if ref == "" {
				continue
			}
			if n < 0 {
				n = 0
			}
			if _, err := stmt.Exec(ref, n); err != nil {
				return fmt.Errorf("store: set hunts %s: %w", ref, err)
			}
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// ParkHunts returns the hunt count for ref; zero when the park is unknown.
func (s *Store) ParkHunts(ref string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRow(`SELECT hunts FROM parks WHERE reference = ?`, normalizeRef(ref)).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: park hunts: %w", err)
	}
	return n, nil
}

func scanPark(row rowScanner) (*Park, error) {
	var p Park
	var active int
	var updated int64
	err := row.Scan(&p.ID, &p.Reference, &p.Name, &p.Grid4, &p.Grid6, &p.Latitude, &p.Longitude,
		&p.ParkTypeDesc, &p.LocationDesc, &p.LocationName, &p.EntityName, &active, &p.Hunts, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan park: %w", err)
	}
	p.Active = active != 0
	p.LastUpdated = timeFromUnix(updated)
	return &p, nil
}
