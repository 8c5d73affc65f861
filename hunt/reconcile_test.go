package hunt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hunterlog/pota"
	"hunterlog/store"
)

func openReconcileStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "hunterlog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReconcileOverwritesHuntCount(t *testing.T) {
	st := openReconcileStore(t)
	for i := 0; i < 2; i++ {
		if err := st.IncParkHunt("K-1234", &pota.Park{Name: "Acadia"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	remote := &fakeRemote{parks: map[string]*pota.Park{}}
	r := NewReconciler(remote, st, time.Millisecond, nil)

	res := r.ReconcileFromCountFile(context.Background(), writeFile(t, "counts.json", `{"K-1234": 5}`))
	if !res.Success || res.Count != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	hunts, _ := st.ParkHunts("K-1234")
	if hunts != 5 {
		t.Fatalf("hunts=%d want exactly 5", hunts)
	}
	if remote.parkCalls != 0 {
		t.Fatalf("named park should not be fetched during catch-up")
	}
}

func TestReconcileBadFileWritesNothing(t *testing.T) {
	st := openReconcileStore(t)
	r := NewReconciler(&fakeRemote{}, st, 0, nil)
	res := r.ReconcileFromCountFile(context.Background(), writeFile(t, "bad.csv", "Park,Count\nK-1,2\n"))
	if res.Success {
		t.Fatalf("expected failure for csv without Reference column")
	}
	res = r.ReconcileFromCountFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	if res.Success {
		t.Fatalf("expected failure for missing file")
	}
	parks, _ := st.Parks()
	if len(parks) != 0 {
		t.Fatalf("no parks should be written, got %d", len(parks))
	}
}

func TestParseCountFileCSV(t *testing.T) {
	csvBody := "\ufeffDX Entity,Location,HASC,Reference,Park Name,First QSO Date,QSOs\n" +
		"United States Of America,US-ME,US-ME,K-0001,\"Acadia National Park\",2023-01-01,3\n" +
		"United States Of America,US-CA,US-CA,k-0002,\"Yosemite, National Park\",2023-02-01,1\n"
	counts, err := ParseCountFile(writeFile(t, "hunter_parks.csv", csvBody))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(counts) != 2 || counts["K-0001"] != 3 || counts["K-0002"] != 1 {
		t.Fatalf("counts=%v", counts)
	}

	counts, err = ParseCountFile(writeFile(t, "refs.csv", "Reference\nK-0001\nK-0001\nK-0003\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if counts["K-0001"] != 2 || counts["K-0003"] != 1 {
		t.Fatalf("row counting: %v", counts)
	}

	if _, err := ParseCountFile(writeFile(t, "badqsos.csv", "Reference,QSOs\nK-0001,many\n")); err == nil {
		t.Fatalf("expected error for non-numeric QSOs")
	}
}

func TestParseCountFileJSON(t *testing.T) {
	counts, err := ParseCountFile(writeFile(t, "c.json", ` {"k-1234": 5, "K-1234": 1, "": 9} `))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(counts) != 1 || counts["K-1234"] != 6 {
		t.Fatalf("counts=%v", counts)
	}
	if _, err := ParseCountFile(writeFile(t, "bad.json", `{"K-1": "x"}`)); err == nil {
		t.Fatalf("expected error for non-numeric json count")
	}
}

func TestCatchUpFillsOnlyUnnamedParks(t *testing.T) {
	st := openReconcileStore(t)
	if err := st.IncParkHunt("K-0001", &pota.Park{Name: "Known"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := st.SetParkHunts(map[string]int{"K-0002": 4, "K-0003": 1}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	remote := &fakeRemote{parks: map[string]*pota.Park{
		"K-0002": {Name: "Second", Grid4: "EM79"},
	}}
	r := NewReconciler(remote, st, time.Millisecond, nil)

	res := r.CatchUpAllMetadata(context.Background())
	if !res.Success || res.Count != 1 || !strings.Contains(res.Message, "1 unresolved") {
		t.Fatalf("unexpected result %+v", res)
	}
	if remote.parkCalls != 2 {
		t.Fatalf("park calls=%d want 2", remote.parkCalls)
	}
	p, _ := st.GetPark("K-0002")
	if p == nil || p.Name.String != "Second" || p.Hunts != 4 || p.Grid4 != "EM79" {
		t.Fatalf("unexpected park %+v", p)
	}
}

func TestCatchUpHonorsCancellation(t *testing.T) {
	st := openReconcileStore(t)
	if _, err := st.SetParkHunts(map[string]int{"K-0001": 1, "K-0002": 1, "K-0003": 1}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	remote := &fakeRemote{parks: map[string]*pota.Park{}}
	r := NewReconciler(remote, st, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.CatchUpAllMetadata(ctx)
	if res.Success {
		t.Fatalf("expected cancelled result, got %+v", res)
	}
	if remote.parkCalls != 1 {
		t.Fatalf("only the first call runs before the delay, calls=%d", remote.parkCalls)
	}
}
