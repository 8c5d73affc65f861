package store

import (
	"database/sql"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// parkDump is the on-disk shape of one exported park.
type parkDump struct {
	Reference    string  `json:"reference"`
	Name         *string `json:"name"`
	Grid4        string  `json:"grid4"`
	Grid6        string  `json:"grid6"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	ParkTypeDesc string  `json:"parktypeDesc"`
	LocationDesc string  `json:"locationDesc"`
	LocationName string  `json:"locationName"`
	EntityName   string  `json:"entityName"`
	Active       bool    `json:"active"`
	Hunts        int     `json:"hunts"`
	LastUpdated  int64   `json:"lastUpdated"`
}

// ExportParks writes the whole parks table to w as a JSON array and returns
// the number of rows written.
func (s *Store) ExportParks(w io.Writer) (int, error) {
	parks, err := s.Parks()
	if err != nil {
		return 0, err
	}
	out := make([]parkDump, 0, len(parks))
	for _, p := range parks {
		d := parkDump{
			Reference:    p.Reference,
			Grid4:        p.Grid4,
			Grid6:        p.Grid6,
			Latitude:     p.Latitude,
			Longitude:    p.Longitude,
			ParkTypeDesc: p.ParkTypeDesc,
			LocationDesc: p.LocationDesc,
			LocationName: p.LocationName,
			EntityName:   p.EntityName,
			Active:       p.Active,
			Hunts:        p.Hunts,
			LastUpdated:  unixOrZero(p.LastUpdated),
		}
		if p.Name.Valid {
			name := p.Name.String
			d.Name = &name
		}
		out = append(out, d)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return 0, fmt.Errorf("store: encode parks: %w", err)
	}
	return len(out), nil
}

// Purpose: Load a previous ExportParks dump.
// Key aspects: Rows are upserted by reference inside one transaction; the
// dump's hunt counts replace the local ones.
// Upstream: park-import command.
// Downstream: parks table.
func (s *Store) ImportParks(r io.Reader) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var dump []parkDump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return 0, fmt.Errorf("store: decode parks: %w", err)
	}
	n := 0
	err := s.inTx(func(tx *sql.Tx) error {
		for _, d := range dump {
			ref := normalizeRef(d.Reference)
			if ref == "" {
				continue
			}
			var name any
			if d.Name != nil && strings.TrimSpace(*d.Name) != "" {
				name = *d.Name
			}
			updated := d.LastUpdated
			if updated <= 0 {
				updated = s.now().UTC().Unix()
			}
			_, err := tx.Exec(`
INSERT INTO parks (reference, name, grid4, grid6, latitude, longitude,
    park_type_desc, location_desc, location_name, entity_name, active, hunts, last_updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
    hunts = excluded.hunts,
    last_updated = excluded.last_updated`,
				ref, name, d.Grid4, d.Grid6, d.Latitude, d.Longitude,
				d.ParkTypeDesc, d.LocationDesc, d.LocationName, d.EntityName,
				boolToInt(d.Active), max(d.Hunts, 0), updated)
			if err != nil {
				return fmt.Errorf("store: import park %s: %w", ref, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
