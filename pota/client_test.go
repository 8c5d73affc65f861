package pota

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
	uris []string
}

func (h *hitCounter) record(r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hits == nil {
		h.hits = make(map[string]int)
	}
	h.hits[r.URL.Path]++
	h.uris = append(h.uris, r.RequestURI)
}

func (h *hitCounter) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func (h *hitCounter) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, v := range h.hits {
		n += v
	}
	return n
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *hitCounter, *fakeClock, string) {
	t.Helper()
	hits := &hitCounter{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.record(r)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	clock := &fakeClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	dir := t.TempDir()
	client := NewClient(Options{
		BaseURL:    server.URL,
		DataDir:    dir,
		UserAgent:  "hunterlog/test",
		HTTPClient: server.Client(),
		Logger:     log.New(io.Discard, "", 0),
		Now:        clock.Now,
	})
	return client, hits, clock, dir
}

func TestActivatorStatsNormalizesToBaseCall(t *testing.T) {
	client, hits, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stats/user/W1AW" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"callsign":"W1AW","name":"Hiram","activator":{"activations":3,"parks":2,"qsos":120},"hunter":{"parks":40,"qsos":55}}`)
	})
	ctx := context.Background()

	for _, call := range []string{"W1AW/P", "W1AW/QRP", "W1AW", "w1aw"} {
		stats := client.ActivatorStats(ctx, call)
		if stats == nil || stats.Name != "Hiram" || stats.Activator.QSOs != 120 {
			t.Fatalf("unexpected stats for %s: %+v", call, stats)
		}
	}
	if got := hits.count("/stats/user/W1AW"); got != 1 {
		t.Fatalf("expected a single request for all base-call variants, got %d", got)
	}
}

func TestActivatorStatsExpiresAfterSixHours(t *testing.T) {
	client, hits, clock, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"callsign":"K1ABC","name":"Ann"}`)
	})
	ctx := context.Background()
	client.ActivatorStats(ctx, "K1ABC")
	clock.Advance(6*time.Hour - time.Minute)
	client.ActivatorStats(ctx, "K1ABC")
	if hits.total() != 1 {
		t.Fatalf("expected memoized stats inside 6h, got %d requests", hits.total())
	}
	clock.Advance(2 * time.Minute)
	client.ActivatorStats(ctx, "K1ABC")
	if hits.total() != 2 {
		t.Fatalf("expected refetch after 6h, got %d requests", hits.total())
	}
}

func TestParkMemoizedForTTLWindow(t *testing.T) {
	client, hits, clock, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"reference":"K-1234","name":"Test State Park","grid6":"FN31pr","locationDesc":"US-CT"}`)
	})
	ctx := context.Background()

	first := client.Park(ctx, "K-1234")
	second := client.Park(ctx, "K-1234")
	if first == nil || second == nil || first.Name != "Test State Park" {
		t.Fatalf("unexpected parks: %+v %+v", first, second)
	}
	if got := hits.count("/park/K-1234"); got != 1 {
		t.Fatalf("expected 1 request within TTL, got %d", got)
	}

	clock.Advance(24*time.Hour + time.Second)
	if third := client.Park(ctx, "K-1234"); third == nil {
		t.Fatalf("expected park after refetch")
	}
	if got := hits.count("/park/K-1234"); got != 2 {
		t.Fatalf("expected a new request after TTL, got %d", got)
	}
}

func TestParkNonSuccessIsAbsentAndNegativelyMemoized(t *testing.T) {
	client, hits, clock, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()
	if p := client.Park(ctx, "K-0000"); p != nil {
		t.Fatalf("expected absent park, got %+v", p)
	}
	client.Park(ctx, "K-0000")
	if hits.total() != 1 {
		t.Fatalf("expected negative result memoized, got %d requests", hits.total())
	}
	clock.Advance(11 * time.Minute)
	client.Park(ctx, "K-0000")
	if hits.total() != 2 {
		t.Fatalf("expected retry after negative TTL, got %d requests", hits.total())
	}
}

func TestParkNullBodyIsAbsent(t *testing.T) {
	client, _, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `null`)
	})
	if p := client.Park(context.Background(), "K-9999"); p != nil {
		t.Fatalf("expected absent park for null body, got %+v", p)
	}
}

func TestTransportFailureIsAbsentAndNotMemoized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := server.URL
	server.Close()

	client := NewClient(Options{BaseURL: base, DataDir: t.TempDir(), Logger: log.New(io.Discard, "", 0)})
	if p := client.Park(context.Background(), "K-1234"); p != nil {
		t.Fatalf("expected nil park on transport failure")
	}
	if client.parks.Len() != 0 {
		t.Fatalf("expected transport failure not to be memoized")
	}
}

func TestSpotsAlwaysLive(t *testing.T) {
	client, hits, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"spotId":1,"activator":"K1ABC","frequency":"14285","mode":"SSB","reference":"K-1234"}]`)
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		spots := client.Spots(ctx)
		if len(spots) != 1 || spots[0].Reference != "K-1234" {
			t.Fatalf("unexpected spots: %+v", spots)
		}
	}
	if got := hits.count("/spot/activator"); got != 2 {
		t.Fatalf("expected 2 live requests, got %d", got)
	}
}

func TestSpotCommentsEscapesActivator(t *testing.T) {
	client, hits, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"spotId":9,"spotter":"N0CALL","comments":"tnx"}]`)
	})
	comments := client.SpotComments(context.Background(), "VE3/W1AW/P", "K-1234")
	if len(comments) != 1 || comments[0].Comments != "tnx" {
		t.Fatalf("unexpected comments: %+v", comments)
	}
	hits.mu.Lock()
	uri := hits.uris[0]
	hits.mu.Unlock()
	if uri != "/spot/comments/VE3%2FW1AW%2FP/K-1234" {
		t.Fatalf("expected escaped activator in path, got %q", uri)
	}
}

func TestDownloadParksAlreadyPresentSkipsNetwork(t *testing.T) {
	client, hits, _, dir := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	if err := os.WriteFile(filepath.Join(dir, "parks-US-CA.json"), []byte("[]"), 0o644); err != nil {
		t.Fatalf("seed artifact: %v", err)
	}
	if got := client.DownloadParks(context.Background(), "US-CA", false); got != AreaAlreadyPresent {
		t.Fatalf("expected AreaAlreadyPresent, got %d", got)
	}
	if hits.total() != 0 {
		t.Fatalf("expected zero network requests, got %d", hits.total())
	}
}

func TestDownloadParksForceAndMemo(t *testing.T) {
	client, hits, clock, dir := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"reference":"K-0001","name":"Alpha"}]`)
	})
	ctx := context.Background()

	if got := client.DownloadParks(ctx, "US-CA", false); got != http.StatusOK {
		t.Fatalf("expected 200 on first download, got %d", got)
	}
	data, err := os.ReadFile(filepath.Join(dir, "parks-US-CA.json"))
	if err != nil || !strings.Contains(string(data), "K-0001") {
		t.Fatalf("expected artifact written, err=%v data=%q", err, string(data))
	}
	if got := client.DownloadParks(ctx, "US-CA", false); got != http.StatusOK {
		t.Fatalf("expected memoized 200, got %d", got)
	}
	if got := client.DownloadParks(ctx, "US-CA", true); got != http.StatusOK {
		t.Fatalf("expected forced download, got %d", got)
	}
	if got := client.DownloadParks(ctx, "US-CA", true); got != http.StatusOK {
		t.Fatalf("expected memoized forced download, got %d", got)
	}
	if got := hits.count("/location/parks/US-CA"); got != 2 {
		t.Fatalf("expected 2 downloads (plain + first forced), got %d", got)
	}

	clock.Advance(24*time.Hour + time.Second)
	client.DownloadParks(ctx, "US-CA", true)
	if got := hits.count("/location/parks/US-CA"); got != 3 {
		t.Fatalf("expected forced download after window, got %d", got)
	}
}

func TestDownloadParksForcedNotModifiedKeepsArtifact(t *testing.T) {
	client, hits, clock, dir := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"p1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"p1"`)
		_, _ = io.WriteString(w, `[{"reference":"K-0001"}]`)
	})
	ctx := context.Background()
	if got := client.DownloadParks(ctx, " US-ME ", false); got != http.StatusOK {
		t.Fatalf("expected 200, got %d", got)
	}
	if client.AreaPath(" US-ME ") != filepath.Join(dir, "parks-US-ME.json") {
		t.Fatalf("unexpected area path %q", client.AreaPath(" US-ME "))
	}
	clock.Advance(24*time.Hour + time.Second)
	if got := client.DownloadParks(ctx, "US-ME", true); got != AreaAlreadyPresent {
		t.Fatalf("expected unchanged artifact to report present, got %d", got)
	}
	if got := hits.count("/location/parks/US-ME"); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "parks-US-ME.json"))
	if !strings.Contains(string(data), "K-0001") {
		t.Fatalf("artifact lost: %q", data)
	}
}

func TestDownloadParksRejectsPathTraversal(t *testing.T) {
	client, hits, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	if got := client.DownloadParks(context.Background(), "../etc", true); got != AreaUnreachable {
		t.Fatalf("expected rejection, got %d", got)
	}
	if hits.total() != 0 {
		t.Fatalf("expected no request for invalid area")
	}
}

func TestLocationsPersistsSideFile(t *testing.T) {
	body := `[{"programId":1,"programPrefix":"K","entities":[{"entityId":291,"entityName":"United States Of America","locations":[{"locationId":7,"descriptor":"US-CA","name":"California","parks":300}]}]}]`
	client, hits, _, dir := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	})
	ctx := context.Background()
	programs := client.Locations(ctx)
	if len(programs) != 1 || programs[0].Entities[0].Locations[0].Descriptor != "US-CA" {
		t.Fatalf("unexpected programs: %+v", programs)
	}
	data, err := os.ReadFile(filepath.Join(dir, LocationsFile))
	if err != nil {
		t.Fatalf("read side file: %v", err)
	}
	if string(data) != body {
		t.Fatalf("expected verbatim side file, got %q", string(data))
	}
	client.Locations(ctx)
	if hits.count("/programs/locations/") != 2 {
		t.Fatalf("expected live fetch each call")
	}
}

func TestPostSpotSendsBodyAndHeaders(t *testing.T) {
	var got SpotSubmission
	var headers http.Header
	client, _, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/spot/" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		headers = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &got)
		w.WriteHeader(http.StatusOK)
	})
	status := client.PostSpot(context.Background(), SpotSubmission{
		Activator: "K1ABC",
		Spotter:   "N0CALL",
		Frequency: "14285",
		Reference: "K-1234",
		Mode:      "SSB",
		Comments:  "59 tnx",
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if got.Source != SpotSource || got.Activator != "K1ABC" || got.Comments != "59 tnx" {
		t.Fatalf("unexpected body: %+v", got)
	}
	if headers.Get("Content-Type") != "application/json" ||
		headers.Get("Origin") != "https://pota.app" ||
		headers.Get("Referer") != "https://pota.app/" ||
		headers.Get("User-Agent") != "hunterlog/test" {
		t.Fatalf("unexpected headers: %v", headers)
	}
}

func TestPostSpotFailureDoesNotPanic(t *testing.T) {
	client, _, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	if status := client.PostSpot(context.Background(), SpotSubmission{Activator: "K1ABC"}); status != http.StatusBadRequest {
		t.Fatalf("expected 400 to be reported, got %d", status)
	}
}
