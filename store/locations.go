package store

import (
	"database/sql"
	"fmt"
	"strings"

	"hunterlog/pota"
)

// LocationRow is one flattened program/entity/location entry.
type LocationRow struct {
	LocationID    int
	Descriptor    string
	Name          string
	EntityID      int
	EntityName    string
	ProgramPrefix string
	Parks         int
	Latitude      float64
	Longitude     float64
}

// LoadLocations flattens the location tree and replaces the table contents.
// It returns the number of rows written.
func (s *Store) LoadLocations(programs []pota.Program) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	n := 0
	err := s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM locations`); err != nil {
			return fmt.Errorf("store: clear locations: %w", err)
		}
		stmt, err := tx.Prepare(`
INSERT OR REPLACE INTO locations (location_id, descriptor, name, entity_id, entity_name,
    program_prefix, parks, latitude, longitude)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare locations: %w", err)
		}
		defer stmt.Close()
		for _, p := range programs {
			for _, e := range p.Entities {
				for _, l := range e.Locations {
					if _, err := stmt.Exec(l.LocationID, strings.TrimSpace(l.Descriptor), l.Name,
						e.EntityID, e.EntityName, p.ProgramPrefix, l.Parks, l.Latitude, l.Longitude); err != nil {
						return fmt.Errorf("store: insert location %s: %w", l.Descriptor, err)
					}
					n++
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Locations returns all rows whose descriptor starts with prefix ("" = all).
func (s *Store) Locations(prefix string) ([]LocationRow, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
SELECT location_id, descriptor, name, entity_id, entity_name, program_prefix, parks, latitude, longitude
FROM locations WHERE descriptor LIKE ? ESCAPE '\' ORDER BY descriptor`, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("store: list locations: %w", err)
	}
	defer rows.Close()
	var out []LocationRow
	for rows.Next() {
		var l LocationRow
		if err := rows.Scan(&l.LocationID, &l.Descriptor, &l.Name, &l.EntityID, &l.EntityName,
			&l.ProgramPrefix, &l.Parks, &l.Latitude, &l.Longitude); err != nil {
			return nil, fmt.Errorf("store: scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// likePrefix escapes LIKE metacharacters and appends the wildcard.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
