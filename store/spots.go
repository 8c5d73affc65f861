package store

import (
	"database/sql"
	"errors"
	"fmt"

	"hunterlog/pota"
	"hunterlog/strutil"
)

const spotColumns = `spot_id, activator, frequency, mode, reference, park_name, spot_time,
    spotter, comments, source, invalid, name, location_desc, grid4, grid6,
    latitude, longitude, count, expire`

// Purpose: Replace the spot snapshot with the latest remote list.
// Key aspects: Delete and insert in one transaction so readers never see a
// half-written snapshot. Duplicate spot ids keep the last entry.
// Upstream: hunt.Pipeline.LogContact, spots command.
// Downstream: spots table.
func (s *Store) ReplaceSpots(spots []pota.Spot) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM spots`); err != nil {
			return fmt.Errorf("store: clear spots: %w", err)
		}
		stmt, err := tx.Prepare(`
INSERT OR REPLACE INTO spots (` + spotColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare spots: %w", err)
		}
		defer stmt.Close()
		for _, sp := range spots {
			var invalid any
			if sp.Invalid != nil {
				invalid = boolToInt(*sp.Invalid)
			}
			if _, err := stmt.Exec(sp.SpotID, sp.Activator, sp.Frequency, sp.Mode, sp.Reference,
				sp.ParkName, sp.SpotTime, sp.Spotter, sp.Comments, sp.Source, invalid, sp.Name,
				sp.LocationDesc, sp.Grid4, sp.Grid6, sp.Latitude, sp.Longitude, sp.Count, sp.Expire); err != nil {
				return fmt.Errorf("store: insert spot %d: %w", sp.SpotID, err)
			}
		}
		return nil
	})
}

// Spots returns the current snapshot ordered by spot id.
func (s *Store) Spots() ([]pota.Spot, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT ` + spotColumns + ` FROM spots ORDER BY spot_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list spots: %w", err)
	}
	defer rows.Close()
	var out []pota.Spot
	for rows.Next() {
		sp, err := scanSpot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sp)
	}
	return out, rows.Err()
}

// GetSpot returns the snapshot entry with id, or nil when absent.
func (s *Store) GetSpot(id int64) (*pota.Spot, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	sp, err := scanSpot(s.db.QueryRow(`SELECT `+spotColumns+` FROM spots WHERE spot_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sp, err
}

func scanSpot(row rowScanner) (*pota.Spot, error) {
	var sp pota.Spot
	var invalid sql.NullInt64
	err := row.Scan(&sp.SpotID, &sp.Activator, &sp.Frequency, &sp.Mode, &sp.Reference,
		&sp.ParkName, &sp.SpotTime, &sp.Spotter, &sp.Comments, &sp.Source, &invalid, &sp.Name,
		&sp.LocationDesc, &sp.Grid4, &sp.Grid6, &sp.Latitude, &sp.Longitude, &sp.Count, &sp.Expire)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan spot: %w", err)
	}
	if invalid.Valid {
		b := invalid.Int64 != 0
		sp.Invalid = &b
	}
	return &sp, nil
}

// ReplaceSpotComments stores the latest comment history for one activation,
// dropping whatever was stored for it before.
func (s *Store) ReplaceSpotComments(activator, park string, comments []pota.SpotComment) error {
	if err := s.ready(); err != nil {
		return err
	}
	activator = strutil.NormalizeUpper(activator)
	park = normalizeRef(park)
	return s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM spot_comments WHERE activator = ? AND park = ?`, activator, park); err != nil {
			return fmt.Errorf("store: clear comments: %w", err)
		}
		for _, c := range comments {
			if _, err := tx.Exec(`
INSERT INTO spot_comments (activator, park, spot_id, spot_time, spotter, mode, frequency, band, source, comments)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				activator, park, c.SpotID, c.SpotTime, c.Spotter, c.Mode, c.Frequency, c.Band, c.Source, c.Comments); err != nil {
				return fmt.Errorf("store: insert comment: %w", err)
			}
		}
		return nil
	})
}

// SpotComments returns the stored history for one activation, oldest first.
func (s *Store) SpotComments(activator, park string) ([]pota.SpotComment, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
SELECT spot_id, spot_time, spotter, mode, frequency, band, source, comments
FROM spot_comments WHERE activator = ? AND park = ? ORDER BY id`,
		strutil.NormalizeUpper(activator), normalizeRef(park))
	if err != nil {
		return nil, fmt.Errorf("store: list comments: %w", err)
	}
	defer rows.Close()
	var out []pota.SpotComment
	for rows.Next() {
		var c pota.SpotComment
		if err := rows.Scan(&c.SpotID, &c.SpotTime, &c.Spotter, &c.Mode, &c.Frequency, &c.Band, &c.Source, &c.Comments); err != nil {
			return nil, fmt.Errorf("store: scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
