package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"hunterlog/pota"
)

// Alert watches the spot snapshot for activations in a location.
type Alert struct {
	ID            int64
	Name          string
	LocSearch     string
	Enabled       bool
	LastTriggered time.Time
}

// AlertMatch pairs an alert with the first spot it matched (nil when none).
type AlertMatch struct {
	Alert Alert
	Spot  *pota.Spot
}

// Key is the "name+id" label used when listing matches.
func (m AlertMatch) Key() string {
	return fmt.Sprintf("%s+%d", m.Alert.Name, m.Alert.ID)
}

// AddAlert creates an enabled alert and returns its id.
func (s *Store) AddAlert(name, locSearch string) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	name = strings.TrimSpace(name)
	locSearch = strings.ToUpper(strings.TrimSpace(locSearch))
	if name == "" || locSearch == "" {
		return 0, fmt.Errorf("store: alert needs a name and a location")
	}
	res, err := s.db.Exec(`INSERT INTO alerts (name, loc_search, enabled) VALUES (?, ?, 1)`, name, locSearch)
	if err != nil {
		return 0, fmt.Errorf("store: add alert: %w", err)
	}
	return res.LastInsertId()
}

// Purpose: Match every enabled alert against the current spot snapshot.
// Key aspects: First spot (by id) whose location descriptor starts with the
// alert's search string wins; matched alerts get last_triggered stamped in
// the same transaction.
// Upstream: alerts command.
// Downstream: alerts and spots tables.
func (s *Store) CheckAlerts() ([]AlertMatch, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var out []AlertMatch
	err := s.inTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT id, name, loc_search, enabled, last_triggered FROM alerts WHERE enabled = 1 ORDER BY id`)
		if err != nil {
			return fmt.Errorf("store: list alerts: %w", err)
		}
		var alerts []Alert
		for rows.Next() {
			var a Alert
			var enabled int
			var last int64
			if err := rows.Scan(&a.ID, &a.Name, &a.LocSearch, &enabled, &last); err != nil {
				rows.Close()
				return fmt.Errorf("store: scan alert: %w", err)
			}
			a.Enabled = enabled != 0
			a.LastTriggered = timeFromUnix(last)
			alerts = append(alerts, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := s.now().UTC()
		for _, a := range alerts {
			sp, err := scanSpot(tx.QueryRow(`SELECT `+spotColumns+` FROM spots
WHERE location_desc LIKE ? ESCAPE '\' ORDER BY spot_id LIMIT 1`, likePrefix(a.LocSearch)))
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			if sp != nil {
				if _, err := tx.Exec(`UPDATE alerts SET last_triggered = ? WHERE id = ?`, now.Unix(), a.ID); err != nil {
					return fmt.Errorf("store: stamp alert %d: %w", a.ID, err)
				}
				a.LastTriggered = time.Unix(now.Unix(), 0).UTC()
			}
			out = append(out, AlertMatch{Alert: a, Spot: sp})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
