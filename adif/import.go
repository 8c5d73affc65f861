package adif

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"hunterlog/bands"
	"hunterlog/store"
	"hunterlog/strutil"
)

// ReadFile parses an ADIF file and returns its POTA contacts as QSOs ready
// for insertion. Records without SIG=POTA or without SIG_INFO are skipped;
// skipped reports how many.
func ReadFile(path string) (qsos []store.QSO, skipped int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("adif: read %s: %w", path, err)
	}
	for _, rec := range ParseFields(string(data)) {
		q, ok := QSOFromFields(rec)
		if !ok {
			skipped++
			continue
		}
		qsos = append(qsos, q)
	}
	return qsos, skipped, nil
}

// Purpose: Map one parsed ADIF record onto a QSO.
// Key aspects: Only POTA hunts qualify; FREQ is converted back to the kHz
// string the store keeps; TIME_ON accepts HHMM or HHMMSS; imported rows are
// marked as not logged by this program.
// Upstream: ReadFile.
// Downstream: strutil.NormalizeUpper, bands.Canonical.
func QSOFromFields(rec map[string]string) (store.QSO, bool) {
	if strutil.NormalizeUpper(rec["SIG"]) != "POTA" {
		return store.QSO{}, false
	}
	q := store.QSO{
		Call:       strutil.NormalizeUpper(rec["CALL"]),
		Name:       strings.TrimSpace(rec["NAME"]),
		State:      strings.TrimSpace(rec["STATE"]),
		RSTSent:    strings.TrimSpace(rec["RST_SENT"]),
		RSTRecv:    strings.TrimSpace(rec["RST_RCVD"]),
		Mode:       strings.TrimSpace(rec["MODE"]),
		Gridsquare: strutil.NormalizeGrid(rec["GRIDSQUARE"]),
		Sig:        "POTA",
		SigInfo:    strutil.NormalizeUpper(rec["SIG_INFO"]),
		Comment:    strings.TrimSpace(rec["COMMENT"]),
	}
	if q.Call == "" || q.SigInfo == "" {
		return store.QSO{}, false
	}
	if name, ok := bands.Canonical(rec["BAND"]); ok {
		q.Band = name
	}
	if mhz, err := strconv.ParseFloat(strings.TrimSpace(rec["FREQ"]), 64); err == nil && mhz > 0 {
		q.Freq = strconv.FormatFloat(math.Round(mhz*1e6)/1e3, 'f', -1, 64)
	}
	if d, err := strconv.ParseFloat(strings.TrimSpace(rec["DISTANCE"]), 64); err == nil {
		q.Distance = d
	}
	ts, ok := parseDateTime(rec["QSO_DATE"], rec["TIME_ON"])
	if !ok {
		return store.QSO{}, false
	}
	q.Time = ts
	return q, true
}

func parseDateTime(date, timeOn string) (time.Time, bool) {
	date = strings.TrimSpace(date)
	timeOn = strings.TrimSpace(timeOn)
	layout := "20060102150405"
	switch len(timeOn) {
	case 6:
	case 4:
		layout = "200601021504"
	default:
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(layout, date+timeOn, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
