package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"hunterlog/bands"
	"hunterlog/strutil"
)

// QSO is one logged contact. Freq is the kHz string as entered; Time is UTC.
type QSO struct {
	ID            int64     `json:"qso_id"`
	Call          string    `json:"call"`
	Name          string    `json:"name"`
	State         string    `json:"state"`
	RSTSent       string    `json:"rst_sent"`
	RSTRecv       string    `json:"rst_recv"`
	Freq          string    `json:"freq"`
	Band          string    `json:"band"`
	Mode          string    `json:"mode"`
	Time          time.Time `json:"qso_date"`
	Gridsquare    string    `json:"gridsquare"`
	Sig           string    `json:"sig"`
	SigInfo       string    `json:"sig_info"`
	Distance      float64   `json:"distance"`
	Bearing       float64   `json:"bearing"`
	Comment       string    `json:"comment"`
	FromApp       bool      `json:"from_app"`
	ConfirmedHunt bool      `json:"cnfm_hunt"`
}

const qsoColumns = `qso_id, call, name, state, rst_sent, rst_recv, freq, band, mode, qso_time,
    gridsquare, sig, sig_info, distance, bearing, comment, from_app, cnfm_hunt`

// Purpose: Persist a new contact and return its id.
// Key aspects: Call and sig_info are upper-cased; mode is stored as given
// apart from trimming; band is derived from freq when not supplied; a zero
// time is stamped with the store clock.
// Upstream: hunt.Pipeline.LogContact.
// Downstream: qsos table.
func (s *Store) InsertQSO(q QSO) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	q.Call = strutil.NormalizeUpper(q.Call)
	if q.Call == "" {
		return 0, errors.New("store: qso without call")
	}
	q.Mode = strings.TrimSpace(q.Mode)
	q.SigInfo = strutil.NormalizeUpper(q.SigInfo)
	q.Freq = strings.TrimSpace(q.Freq)
	if strings.TrimSpace(q.Band) == "" {
		q.Band = bands.NameForFrequency(q.Freq)
	}
	if q.Time.IsZero() {
		q.Time = s.now()
	}
	res, err := s.db.Exec(`
INSERT INTO qsos (call, name, state, rst_sent, rst_recv, freq, band, mode, qso_time,
    gridsquare, sig, sig_info, distance, bearing, comment, from_app, cnfm_hunt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.Call, q.Name, q.State, q.RSTSent, q.RSTRecv, q.Freq, q.Band, q.Mode, q.Time.UTC().Unix(),
		q.Gridsquare, q.Sig, q.SigInfo, q.Distance, q.Bearing, q.Comment,
		boolToInt(q.FromApp), boolToInt(q.ConfirmedHunt))
	if err != nil {
		return 0, fmt.Errorf("store: insert qso %s: %w", q.Call, err)
	}
	return res.LastInsertId()
}

// GetQSO returns the contact with id, or nil when absent.
func (s *Store) GetQSO(id int64) (*QSO, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	row := s.db.QueryRow(`SELECT `+qsoColumns+` FROM qsos WHERE qso_id = ?`, id)
	q, err := scanQSO(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return q, err
}

// QSOs lists contacts in insertion order; fromAppOnly drops imported ones.
func (s *Store) QSOs(fromAppOnly bool) ([]QSO, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + qsoColumns + ` FROM qsos`
	if fromAppOnly {
		query += ` WHERE from_app = 1`
	}
	query += ` ORDER BY qso_id`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("store: list qsos: %w", err)
	}
	defer rows.Close()
	var out []QSO
	for rows.Next() {
		q, err := scanQSO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func scanQSO(row rowScanner) (*QSO, error) {
	var q QSO
	var ts int64
	var fromApp, cnfm int
	err := row.Scan(&q.ID, &q.Call, &q.Name, &q.State, &q.RSTSent, &q.RSTRecv, &q.Freq, &q.Band,
		&q.Mode, &ts, &q.Gridsquare, &q.Sig, &q.SigInfo, &q.Distance, &q.Bearing, &q.Comment,
		&fromApp, &cnfm)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan qso: %w", err)
	}
	q.Time = time.Unix(ts, 0).UTC()
	q.FromApp = fromApp != 0
	q.ConfirmedHunt = cnfm != 0
	return &q, nil
}
