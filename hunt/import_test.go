package hunt

import (
	"strings"
	"testing"
	"time"

	"hunterlog/store"
)

func TestImportQSOsCountsHunts(t *testing.T) {
	f := newPipelineFixture(t)
	when := time.Date(2023, 7, 1, 14, 0, 0, 0, time.UTC)
	res := f.pipeline.ImportQSOs([]store.QSO{
		{Call: "W1AW", Freq: "7074", Mode: "FT8", Time: when, Sig: "POTA", SigInfo: "K-0001"},
		{Call: "N0CALL", Freq: "14062", Mode: "CW", Time: when.Add(time.Hour), Sig: "POTA", SigInfo: "K-0001"},
		{Call: "", Freq: "14062", Mode: "CW", Time: when, Sig: "POTA", SigInfo: "K-0002"},
	})
	if res.Success || res.Count != 2 || !strings.Contains(res.Message, "1 failed") {
		t.Fatalf("unexpected result %+v", res)
	}
	if hunts, _ := f.store.ParkHunts("K-0001"); hunts != 2 {
		t.Fatalf("hunts=%d want 2", hunts)
	}
	park, _ := f.store.GetPark("K-0001")
	if park == nil || park.HasName() {
		t.Fatalf("imported park should wait for catch-up, got %+v", park)
	}
	qsos, _ := f.store.QSOs(false)
	if len(qsos) != 2 || qsos[0].FromApp {
		t.Fatalf("unexpected stored qsos %+v", qsos)
	}
	if len(f.sink.got) != 0 {
		t.Fatalf("import must not emit adif records")
	}
}
