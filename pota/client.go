// Package pota talks to the Parks on the Air API. Failures never surface as
// errors: every read returns an absent result (nil) and logs why, so callers
// treat "remote unavailable" and "does not exist" the same way.
package pota

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"hunterlog/download"
	"hunterlog/memo"
	"hunterlog/strutil"

	jsoniter "github.com/json-iterator/go"
)

const (
	DefaultBaseURL  = "https://api.pota.app"
	SpotSource      = "hunterlog"
	LocationsFile   = "locations.json"
	webAppOrigin    = "https://pota.app"
	defaultTimeout  = 30 * time.Second
	maxErrorSnippet = 200
)

// AreaStatus is the outcome of DownloadParks: an HTTP status code, or one of
// the sentinels below.
type AreaStatus int

const (
	// AreaAlreadyPresent means the artifact was on disk and force was false.
	AreaAlreadyPresent AreaStatus = -1
	// AreaUnreachable means no HTTP answer was received.
	AreaUnreachable AreaStatus = 0
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options configures a Client. Zero TTLs fall back to the documented windows.
type Options struct {
	BaseURL      string
	DataDir      string
	UserAgent    string
	Timeout      time.Duration
	ActivatorTTL time.Duration
	ParkTTL      time.Duration
	AreaTTL      time.Duration
	NegativeTTL  time.Duration
	HTTPClient   *http.Client
	Logger       *log.Logger
	Now          func() time.Time
}

// Client is safe for concurrent use.
type Client struct {
	baseURL      string
	dataDir      string
	userAgent    string
	http         *http.Client
	logger       *log.Logger
	activatorTTL time.Duration
	parkTTL      time.Duration
	areaTTL      time.Duration
	negativeTTL  time.Duration

	stats *memo.Cache[*ActivatorStats]
	parks *memo.Cache[*Park]
	areas *memo.Cache[AreaStatus]
}

// Purpose: Construct the POTA client and its per-endpoint memo tables.
// Key aspects: One clock drives every memo table so tests can age them together.
// Upstream: main wiring, tests.
// Downstream: memo.New.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = SpotSource
	}
	c := &Client{
		baseURL:      base,
		dataDir:      opts.DataDir,
		userAgent:    ua,
		http:         httpClient,
		logger:       opts.Logger,
		activatorTTL: durationOr(opts.ActivatorTTL, 6*time.Hour),
		parkTTL:      durationOr(opts.ParkTTL, 24*time.Hour),
		areaTTL:      durationOr(opts.AreaTTL, 24*time.Hour),
		negativeTTL:  durationOr(opts.NegativeTTL, 10*time.Minute),
		stats:        memo.New[*ActivatorStats](opts.Now),
		parks:        memo.New[*Park](opts.Now),
		areas:        memo.New[AreaStatus](opts.Now),
	}
	return c
}

// Spots returns every current activation. Never memoized.
func (c *Client) Spots(ctx context.Context) []Spot {
	var out []Spot
	status, err := c.getJSON(ctx, c.endpoint("spot", "activator"), &out)
	if !c.usable("spots", status, err) {
		return nil
	}
	return out
}

// Purpose: Return the spot history of one activation. Never memoized.
// Key aspects: The activator call keeps its stroke affixes and is
// query-escaped ("/" -> "%2F") before it is placed in the path.
// Upstream: store spot comments refresh, CLI.
// Downstream: getJSON.
func (c *Client) SpotComments(ctx context.Context, activator, park string) []SpotComment {
	activator = strings.TrimSpace(activator)
	park = strings.TrimSpace(park)
	if activator == "" || park == "" {
		return nil
	}
	u := c.baseURL + "/spot/comments/" + url.QueryEscape(activator) + "/" + url.PathEscape(park)
	var out []SpotComment
	status, err := c.getJSON(ctx, u, &out)
	if !c.usable("spot comments "+activator+" "+park, status, err) {
		return nil
	}
	return out
}

// Purpose: Return POTA stats for an activator, memoized per base call.
// Key aspects: "W1AW/P", "W1AW/QRP" and "W1AW" share one memo entry and one request.
// Upstream: freshness.Policy.Activator.
// Downstream: strutil.BaseCall, memo.Cache.Do, getJSON.
func (c *Client) ActivatorStats(ctx context.Context, call string) *ActivatorStats {
	base := strutil.BaseCall(call)
	if base == "" {
		return nil
	}
	v, _ := c.stats.Do(memo.Key("stats", base), func() memo.Fill[*ActivatorStats] {
		var out *ActivatorStats
		status, err := c.getJSON(ctx, c.endpoint("stats", "user", base), &out)
		found := out != nil && strings.TrimSpace(out.Callsign) != ""
		return fillFor(c, out, found, status, err, c.activatorTTL, "activator stats "+base)
	})
	return v
}

// Purpose: Return park metadata, memoized per reference.
// Key aspects: A null/empty body is treated as "park does not exist".
// Upstream: freshness.Policy.Park, hunt.Pipeline, hunt.Reconciler.
// Downstream: memo.Cache.Do, getJSON.
func (c *Client) Park(ctx context.Context, ref string) *Park {
	ref = strutil.NormalizeUpper(ref)
	if ref == "" {
		return nil
	}
	v, _ := c.parks.Do(memo.Key("park", ref), func() memo.Fill[*Park] {
		var out *Park
		status, err := c.getJSON(ctx, c.endpoint("park", ref), &out)
		found := out != nil && strings.TrimSpace(out.Reference) != ""
		return fillFor(c, out, found, status, err, c.parkTTL, "park "+ref)
	})
	return v
}

// Purpose: Download the global location list and keep a copy on disk.
// Key aspects: Always live; the raw body is written to locations.json in the
// data directory for offline reuse.
// Upstream: CLI locations command.
// Downstream: getBody, download.WriteFileAtomic.
func (c *Client) Locations(ctx context.Context) []Program {
	body, status, err := c.getBody(ctx, c.endpoint("programs", "locations")+"/")
	if !c.usable("locations", status, err) {
		return nil
	}
	var out []Program
	if err := json.Unmarshal(body, &out); err != nil {
		c.logf("pota: locations decode failed: %v", err)
		return nil
	}
	path := filepath.Join(c.dataDir, LocationsFile)
	if err := download.WriteFileAtomic(path, body); err != nil {
		c.logf("pota: unable to save %s: %v", path, err)
	}
	return out
}

// AreaPath returns the on-disk artifact path for an area's park list.
// Surrounding whitespace in area is ignored, as DownloadParks ignores it.
func (c *Client) AreaPath(area string) string {
	return filepath.Join(c.dataDir, "parks-"+strings.TrimSpace(area)+".json")
}

// Purpose: Ensure the park list for an area is on disk.
// Key aspects: Without force an existing artifact short-circuits to
// AreaAlreadyPresent. The whole check-and-download is memoized for the area
// TTL keyed on (area, force), so even a forced re-download repeats at most
// once per window and concurrent callers share one download.
// Upstream: CLI download-parks command.
// Downstream: memo.Cache.Do, download.Download.
func (c *Client) DownloadParks(ctx context.Context, area string, force bool) AreaStatus {
	area = strings.TrimSpace(area)
	if !validArea(area) {
		c.logf("pota: invalid area code %q", area)
		return AreaUnreachable
	}
	key := memo.Key("area", area, strconv.FormatBool(force))
	v, _ := c.areas.Do(key, func() memo.Fill[AreaStatus] {
		path := c.AreaPath(area)
		if !force && download.Exists(path) {
			return memo.Fill[AreaStatus]{Value: AreaAlreadyPresent, Present: true, TTL: c.areaTTL}
		}
		res, err := download.Download(ctx, c.http, download.Request{
			URL:         c.endpoint("location", "parks", area),
			Destination: path,
			Header:      http.Header{"User-Agent": []string{c.userAgent}},
		})
		if err != nil {
			c.logf("pota: parks for %s: %v", area, err)
			if res.StatusCode == 0 {
				return memo.Fill[AreaStatus]{Value: AreaUnreachable}
			}
			return memo.Fill[AreaStatus]{Value: AreaStatus(res.StatusCode), TTL: c.negativeTTL}
		}
		if res.StatusCode == http.StatusNotModified {
			c.logf("pota: parks for %s unchanged since %s", area, res.Meta.DownloadedAt.Format(time.RFC3339))
			return memo.Fill[AreaStatus]{Value: AreaAlreadyPresent, Present: true, TTL: c.areaTTL}
		}
		status := AreaStatus(res.StatusCode)
		if res.StatusCode != http.StatusOK {
			c.logf("pota: parks for %s: status %d", area, res.StatusCode)
			return memo.Fill[AreaStatus]{Value: status, TTL: c.negativeTTL}
		}
		c.logf("pota: saved %d bytes of parks for %s to %s", res.Bytes, area, path)
		return memo.Fill[AreaStatus]{Value: status, Present: true, TTL: c.areaTTL}
	})
	return v
}

// Purpose: Post a spot (new or re-spot) for an activation.
// Key aspects: Fire-and-forget; the outcome is logged and the status code is
// returned for display only (0 when the request never completed).
// Upstream: CLI post-spot command.
// Downstream: http.Client.Do.
func (c *Client) PostSpot(ctx context.Context, sub SpotSubmission) int {
	if strings.TrimSpace(sub.Source) == "" {
		sub.Source = SpotSource
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		c.logf("pota: encode spot: %v", err)
		return 0
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/spot/", bytes.NewReader(payload))
	if err != nil {
		c.logf("pota: build spot request: %v", err)
		return 0
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", webAppOrigin)
	req.Header.Set("Referer", webAppOrigin+"/")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logf("pota: post spot failed: %v", err)
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	c.logf("pota: post spot code: %d : %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	return resp.StatusCode
}

// fillFor converts one fetch outcome into a memo entry. Transport failures
// are not remembered; "answered but nothing usable" is remembered as absent
// for the negative TTL.
func fillFor[V any](c *Client, v V, found bool, status int, err error, ttl time.Duration, what string) memo.Fill[V] {
	var zero V
	switch {
	case err != nil && status == 0:
		c.logf("pota: %s request failed: %v", what, err)
		return memo.Fill[V]{Value: zero}
	case err != nil:
		c.logf("pota: %s decode failed (status %d): %v", what, status, err)
		return memo.Fill[V]{Value: zero, TTL: c.negativeTTL}
	case status != http.StatusOK:
		c.logf("pota: %s status %d", what, status)
		return memo.Fill[V]{Value: zero, TTL: c.negativeTTL}
	case !found:
		c.logf("pota: %s not found", what)
		return memo.Fill[V]{Value: zero, TTL: c.negativeTTL}
	}
	return memo.Fill[V]{Value: v, Present: true, TTL: ttl}
}

func (c *Client) usable(what string, status int, err error) bool {
	switch {
	case err != nil && status == 0:
		c.logf("pota: %s request failed: %v", what, err)
		return false
	case err != nil:
		c.logf("pota: %s decode failed (status %d): %v", what, status, err)
		return false
	case status != http.StatusOK:
		c.logf("pota: %s status %d", what, status)
		return false
	}
	return true
}

// getJSON returns the HTTP status (0 when no answer arrived) and decodes a 200
// body into out.
func (c *Client) getJSON(ctx context.Context, u string, out any) (int, error) {
	body, status, err := c.getBody(ctx, u)
	if err != nil || status != http.StatusOK {
		return status, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return status, fmt.Errorf("decode %s: %w", u, err)
	}
	return status, nil
}

func (c *Client) getBody(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read %s: %w", u, err)
	}
	if resp.StatusCode != http.StatusOK && len(body) > maxErrorSnippet {
		body = body[:maxErrorSnippet]
	}
	return body, resp.StatusCode, nil
}

func (c *Client) endpoint(parts ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

func (c *Client) logf(format string, args ...any) {
	if c == nil {
		return
	}
	if c.logger == nil {
		log.Printf(format, args...)
		return
	}
	c.logger.Printf(format, args...)
}

func validArea(area string) bool {
	if area == "" || strings.Contains(area, "..") {
		return false
	}
	return !strings.ContainsAny(area, `/\`)
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
