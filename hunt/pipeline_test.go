package hunt

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hunterlog/adif"
	"hunterlog/pota"
	"hunterlog/store"
)

type fakeRemote struct {
	parks     map[string]*pota.Park
	spots     []pota.Spot
	parkCalls int
}

func (f *fakeRemote) Park(_ context.Context, ref string) *pota.Park {
	f.parkCalls++
	return f.parks[ref]
}

func (f *fakeRemote) Spots(context.Context) []pota.Spot {
	return f.spots
}

type recordingSink struct {
	log *adif.Log
	got []store.QSO
	err error
}

func (r *recordingSink) LogQSO(q store.QSO, st adif.Station) error {
	r.got = append(r.got, q)
	if r.err != nil {
		return r.err
	}
	if r.log != nil {
		return r.log.LogQSO(q, st)
	}
	return nil
}

type failingInsertStore struct {
	*store.Store
}

func (failingInsertStore) InsertQSO(store.QSO) (int64, error) {
	return 0, errors.New("disk full")
}

var pipelineNow = time.Date(2024, 5, 4, 18, 30, 7, 0, time.UTC)

type fixture struct {
	pipeline *Pipeline
	remote   *fakeRemote
	store    *store.Store
	sink     *recordingSink
	logPath  string
	notified int
}

func newPipelineFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "hunterlog.db"), store.WithClock(func() time.Time { return pipelineNow }))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	logPath := filepath.Join(dir, adif.BackupFile)
	l, err := adif.Open(logPath, "test")
	if err != nil {
		t.Fatalf("open adif: %v", err)
	}
	f := &fixture{
		remote: &fakeRemote{
			parks: map[string]*pota.Park{
				"K-1234": {Reference: "K-1234", Name: "Acadia", Grid6: "FN54wi", Active: 1},
			},
			spots: []pota.Spot{{SpotID: 1, Activator: "W1AW", Reference: "K-1234", Frequency: "14285", Mode: "SSB"}},
		},
		store:   st,
		sink:    &recordingSink{log: l},
		logPath: logPath,
	}
	f.pipeline = NewPipeline(PipelineOptions{
		Remote:   f.remote,
		Store:    st,
		Sink:     f.sink,
		Notifier: NotifierFunc(func() { f.notified++ }),
		Station:  adif.Station{Callsign: "K1ABC", Grid: "FN42aa"},
		Now:      func() time.Time { return pipelineNow },
	})
	return f
}

func sampleContact(ref string) ContactInput {
	return ContactInput{
		Call:       "w1aw",
		RSTSent:    "57",
		RSTRecv:    "59",
		Freq:       "14285",
		Mode:       "SSB",
		QSODate:    "2024-05-04",
		TimeOn:     "18:30:07",
		Gridsquare: "FN31pr",
		Sig:        "POTA",
		SigInfo:    ref,
	}
}

func TestLogContactRejectsMalformedInput(t *testing.T) {
	f := newPipelineFixture(t)
	in := sampleContact("")
	if res := f.pipeline.LogContact(context.Background(), in); res.Success {
		t.Fatalf("missing sig_info should fail: %+v", res)
	}
	in = sampleContact("K-1234")
	in.Call = " "
	if res := f.pipeline.LogContact(context.Background(), in); res.Success {
		t.Fatalf("missing call should fail: %+v", res)
	}
	in = sampleContact("K-1234")
	in.TimeOn = "noon"
	if res := f.pipeline.LogContact(context.Background(), in); res.Success {
		t.Fatalf("bad time should fail: %+v", res)
	}
	if f.remote.parkCalls != 0 || len(f.sink.got) != 0 {
		t.Fatalf("malformed input must not reach the pipeline steps")
	}
}

func TestLogContactParkFetchFailureStillLogs(t *testing.T) {
	f := newPipelineFixture(t)
	if _, err := f.store.UpsertActivatorStats(pota.ActivatorStats{Callsign: "W1AW", Name: "Hiram"}); err != nil {
		t.Fatalf("seed activator: %v", err)
	}

	res := f.pipeline.LogContact(context.Background(), sampleContact("K-9999"))
	if !res.Success || res.QSOID == 0 {
		t.Fatalf("expected success, got %+v", res)
	}
	if !strings.Contains(res.Message, "park lookup failed") {
		t.Fatalf("message should mention the park failure: %q", res.Message)
	}

	q, err := f.store.GetQSO(res.QSOID)
	if err != nil || q == nil || q.SigInfo != "K-9999" {
		t.Fatalf("qso not stored: %+v %v", q, err)
	}
	park, _ := f.store.GetPark("K-9999")
	if park == nil || park.Name.Valid || park.Hunts != 1 {
		t.Fatalf("expected NULL-name park with one hunt, got %+v", park)
	}
	if len(f.sink.got) != 1 || f.sink.got[0].Name != "Hiram" {
		t.Fatalf("operator name should resolve independently of the park: %+v", f.sink.got)
	}

	data, err := os.ReadFile(f.logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	for _, want := range []string{"<BAND:3>20m\n", "<MODE:3>SSB\n", "<SIG_INFO:6>K-9999\n", "<FREQ:6>14.285\n", "<TIME_ON:6>183007\n"} {
		if !strings.Contains(text, want) {
			t.Fatalf("log file missing %q:\n%s", want, text)
		}
	}
}

func TestLogContactOperatorLookupFailureUsesFallbackName(t *testing.T) {
	f := newPipelineFixture(t)
	res := f.pipeline.LogContact(context.Background(), sampleContact("K-1234"))
	if !res.Success || strings.Contains(res.Message, "park lookup failed") {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(f.sink.got) != 1 || f.sink.got[0].Name != NoName {
		t.Fatalf("expected fallback name, got %+v", f.sink.got)
	}
	park, _ := f.store.GetPark("K-1234")
	if park == nil || park.Name.String != "Acadia" || park.Hunts != 1 {
		t.Fatalf("park should be filled and counted, got %+v", park)
	}
	stored, _ := f.store.GetQSO(res.QSOID)
	if stored.Name == NoName {
		t.Fatalf("fallback name must not be written to the store")
	}
}

func TestLogContactRefreshesSpotsAndNotifies(t *testing.T) {
	f := newPipelineFixture(t)
	f.pipeline.LogContact(context.Background(), sampleContact("K-1234"))
	spots, err := f.store.Spots()
	if err != nil || len(spots) != 1 || spots[0].Activator != "W1AW" {
		t.Fatalf("spots=%+v err=%v", spots, err)
	}
	if f.notified != 1 {
		t.Fatalf("notified=%d want 1", f.notified)
	}

	f.remote.spots = nil
	f.pipeline.LogContact(context.Background(), sampleContact("K-1234"))
	if f.notified != 1 {
		t.Fatalf("absent spot list must not notify, notified=%d", f.notified)
	}
	spots, _ = f.store.Spots()
	if len(spots) != 1 {
		t.Fatalf("absent spot list must keep the previous snapshot")
	}
	hunts, _ := f.store.ParkHunts("K-1234")
	if hunts != 2 {
		t.Fatalf("hunts=%d want 2", hunts)
	}
}

func TestLogContactInsertFailureStillEmits(t *testing.T) {
	f := newPipelineFixture(t)
	f.pipeline.store = failingInsertStore{f.store}
	res := f.pipeline.LogContact(context.Background(), sampleContact("K-1234"))
	if res.Success || !strings.Contains(res.Message, "qso not saved") {
		t.Fatalf("expected reported insert failure, got %+v", res)
	}
	if len(f.sink.got) != 1 || f.sink.got[0].Call != "W1AW" {
		t.Fatalf("record should still be emitted, got %+v", f.sink.got)
	}
	if hunts, _ := f.store.ParkHunts("K-1234"); hunts != 1 {
		t.Fatalf("hunt should still count, got %d", hunts)
	}
}

func TestLogContactSinkFailureReported(t *testing.T) {
	f := newPipelineFixture(t)
	f.sink.err = errors.New("read-only fs")
	res := f.pipeline.LogContact(context.Background(), sampleContact("K-1234"))
	if res.Success || !strings.Contains(res.Message, "adif log not written") {
		t.Fatalf("expected sink failure in result, got %+v", res)
	}
	if res.QSOID == 0 {
		t.Fatalf("qso should still be stored")
	}
}

func TestLogContactFillsDistance(t *testing.T) {
	f := newPipelineFixture(t)
	res := f.pipeline.LogContact(context.Background(), sampleContact("K-1234"))
	q, _ := f.store.GetQSO(res.QSOID)
	if q == nil || q.Distance <= 0 || q.Bearing <= 0 {
		t.Fatalf("expected distance and bearing from grids, got %+v", q)
	}
}

func TestContactFromSpot(t *testing.T) {
	f := newPipelineFixture(t)
	if err := f.store.ReplaceSpots([]pota.Spot{{
		SpotID: 42, Activator: "W1AW", Reference: "K-1234", Frequency: "7032",
		Mode: "CW", LocationDesc: "US-ME,US-NH", Grid6: "FN54wi",
	}}); err != nil {
		t.Fatalf("spots: %v", err)
	}
	if _, err := f.store.UpsertActivatorStats(pota.ActivatorStats{Callsign: "W1AW", Name: "Hiram"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	in, ok := f.pipeline.ContactFromSpot(42)
	if !ok {
		t.Fatalf("expected contact from spot")
	}
	if in.Call != "W1AW" || in.SigInfo != "K-1234" || in.State != "ME" || in.RSTSent != "599" || in.Name != "Hiram" {
		t.Fatalf("unexpected contact %+v", in)
	}
	if in.Distance <= 0 || math.IsNaN(in.Bearing) {
		t.Fatalf("expected distance from station grid, got %+v", in)
	}
	if _, ok := f.pipeline.ContactFromSpot(7); ok {
		t.Fatalf("unknown spot should not build a contact")
	}
}

func TestContactTime(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		date, timeOn string
		want         time.Time
	}{
		{"", "", now},
		{"2024-05-04", "18:30", time.Date(2024, 5, 4, 18, 30, 0, 0, time.UTC)},
		{"20240504", "183007", time.Date(2024, 5, 4, 18, 30, 7, 0, time.UTC)},
		{"2024-05-04T18:30:07Z", "00:00", time.Date(2024, 5, 4, 18, 30, 7, 0, time.UTC)},
		{"", "1830", time.Date(2024, 1, 2, 18, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := contactTime(tt.date, tt.timeOn, now)
		if err != nil {
			t.Fatalf("contactTime(%q,%q): %v", tt.date, tt.timeOn, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("contactTime(%q,%q)=%v want %v", tt.date, tt.timeOn, got, tt.want)
		}
	}
	if _, err := contactTime("yesterday", "", now); err == nil {
		t.Fatalf("expected error for bad date")
	}
}

func TestLogContactKeepsModeAndValidatesBand(t *testing.T) {
	f := newPipelineFixture(t)
	in := sampleContact("K-1234")
	in.Mode = "ssb"
	in.Band = "20 METERS"
	res := f.pipeline.LogContact(context.Background(), in)
	q, _ := f.store.GetQSO(res.QSOID)
	if q == nil || q.Mode != "ssb" || q.Band != "20m" {
		t.Fatalf("unexpected stored qso %+v", q)
	}
	data, err := os.ReadFile(f.logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "<MODE:3>ssb\n") {
		t.Fatalf("mode altered in record: %q", data)
	}

	in.Band = "11m"
	in.Freq = "7074"
	res = f.pipeline.LogContact(context.Background(), in)
	q, _ = f.store.GetQSO(res.QSOID)
	if q == nil || q.Band != "40m" {
		t.Fatalf("unknown band should fall back to the frequency, got %+v", q)
	}
}
