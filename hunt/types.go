// Package hunt runs the multi-step operations behind logging a hunted
// contact and reconciling park hunt counts with an authoritative export.
// Nothing here returns an error to its caller: every operation reports a
// Result and logs what went wrong along the way.
package hunt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hunterlog/adif"
	"hunterlog/pota"
	"hunterlog/store"
)

// NoName is recorded when the activator's name cannot be resolved.
const NoName = "ERROR NO NAME"

// Result is the structured outcome of a hunt operation.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	QSOID   int64  `json:"qso_id,omitempty"`
	Count   int    `json:"count,omitempty"`
}

func failed(format string, args ...any) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...)}
}

// ContactInput is a contact as entered by the operator. Field names follow
// the QSO form payload.
type ContactInput struct {
	Call       string  `json:"call"`
	Name       string  `json:"name"`
	State      string  `json:"state"`
	RSTSent    string  `json:"rst_sent"`
	RSTRecv    string  `json:"rst_recv"`
	Freq       string  `json:"freq"`
	Band       string  `json:"band"`
	Mode       string  `json:"mode"`
	QSODate    string  `json:"qso_date"`
	TimeOn     string  `json:"time_on"`
	Gridsquare string  `json:"gridsquare"`
	Sig        string  `json:"sig"`
	SigInfo    string  `json:"sig_info"`
	Distance   float64 `json:"distance"`
	Bearing    float64 `json:"bearing"`
	Comment    string  `json:"comment"`
}

// Remote is the subset of pota.Client the hunt operations call.
type Remote interface {
	Park(ctx context.Context, ref string) *pota.Park
	Spots(ctx context.Context) []pota.Spot
}

// Sink receives the finished record.
type Sink interface {
	LogQSO(q store.QSO, st adif.Station) error
}

// Notifier is told when the stored spot snapshot has been replaced.
type Notifier interface {
	SpotsChanged()
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func()

// SpotsChanged calls f.
func (f NotifierFunc) SpotsChanged() { f() }

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102",
}

var timeLayouts = []string{"15:04:05", "15:04", "150405", "1504"}

// contactTime combines qso_date and time_on in UTC. A date that already
// carries a clock time wins over time_on. Both empty means now.
func contactTime(date, timeOn string, now time.Time) (time.Time, error) {
	date = strings.TrimSpace(date)
	timeOn = strings.TrimSpace(timeOn)
	if date == "" && timeOn == "" {
		return now.UTC(), nil
	}
	day := now.UTC()
	hasClock := false
	if date != "" {
		var err error
		day, hasClock, err = parseDate(date)
		if err != nil {
			return time.Time{}, err
		}
	}
	if hasClock || timeOn == "" {
		return day, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, timeOn); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time_on %q", timeOn)
}

func parseDate(date string) (time.Time, bool, error) {
	for i, layout := range dateLayouts {
		t, err := time.Parse(layout, date)
		if err != nil {
			continue
		}
		return t.UTC(), i < 3, nil
	}
	return time.Time{}, false, fmt.Errorf("unrecognized qso_date %q", date)
}
