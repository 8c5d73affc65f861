// Package freshness decides when a persisted activator or park record must be
// refreshed from the remote service before it is handed to a caller.
package freshness

import (
	"context"
	"log"
	"strings"
	"time"

	"hunterlog/pota"
	"hunterlog/store"
)

// Mode selects the activator refresh rule.
type Mode string

const (
	// ModeStale refreshes records older than the max age.
	ModeStale Mode = "stale"
	// ModeLegacy refreshes records younger than the max age and returns older
	// ones untouched, reproducing the desktop logger's comparison.
	ModeLegacy Mode = "legacy"

	DefaultMaxAge = 24 * time.Hour
)

// ParseMode maps a config string to a Mode; unknown values select ModeStale.
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeLegacy {
		return ModeLegacy
	}
	return ModeStale
}

// Remote is the subset of pota.Client the policy refreshes from.
type Remote interface {
	ActivatorStats(ctx context.Context, call string) *pota.ActivatorStats
	Park(ctx context.Context, ref string) *pota.Park
}

// Store is the subset of store.Store the policy reads and writes.
type Store interface {
	GetActivator(call string) (*store.Activator, error)
	GetActivatorByID(id int64) (*store.Activator, error)
	UpsertActivatorStats(stats pota.ActivatorStats) (int64, error)
	GetPark(ref string) (*store.Park, error)
	UpdateParkData(p pota.Park) error
}

// Options configures a Policy.
type Options struct {
	Mode   Mode
	MaxAge time.Duration
	Now    func() time.Time
	Logger *log.Logger
}

// Policy is the persisted-record freshness layer.
type Policy struct {
	remote Remote
	store  Store
	mode   Mode
	maxAge time.Duration
	now    func() time.Time
	logger *log.Logger
}

// New builds a Policy over remote and st.
func New(remote Remote, st Store, opts Options) *Policy {
	p := &Policy{
		remote: remote,
		store:  st,
		mode:   opts.Mode,
		maxAge: opts.MaxAge,
		now:    opts.Now,
		logger: opts.Logger,
	}
	if p.mode != ModeLegacy {
		p.mode = ModeStale
	}
	if p.maxAge <= 0 {
		p.maxAge = DefaultMaxAge
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Purpose: Return the persisted activator for call, refreshing when due.
// Key aspects: Missing records are always fetched; the age rule follows the
// configured Mode. A refresh with no usable remote result yields nil, even
// when a stale row exists.
// Upstream: activator command, hunt.Pipeline callers.
// Downstream: Store.GetActivator, refreshActivator.
func (p *Policy) Activator(ctx context.Context, call string) *store.Activator {
	rec, err := p.store.GetActivator(call)
	if err != nil {
		p.logf("freshness: read activator %s: %v", call, err)
		return nil
	}
	if rec == nil || p.activatorDue(rec.Updated) {
		return p.refreshActivator(ctx, call)
	}
	return rec
}

func (p *Policy) activatorDue(updated time.Time) bool {
	age := p.now().Sub(updated)
	if p.mode == ModeLegacy {
		return age < p.maxAge
	}
	return age > p.maxAge
}

func (p *Policy) refreshActivator(ctx context.Context, call string) *store.Activator {
	stats := p.remote.ActivatorStats(ctx, call)
	if stats == nil {
		return nil
	}
	id, err := p.store.UpsertActivatorStats(*stats)
	if err != nil {
		p.logf("freshness: persist activator %s: %v", call, err)
		return nil
	}
	// The stats payload may spell the call differently from the caller, so
	// the reload goes by the row id the upsert touched.
	rec, err := p.store.GetActivatorByID(id)
	if err != nil {
		p.logf("freshness: reload activator %s: %v", call, err)
		return nil
	}
	return rec
}

// Purpose: Return the persisted park for ref, refreshing when incomplete.
// Key aspects: Timestamps are ignored. A missing row is fetched only when
// pull is true; a row with a NULL name is always refreshed. A failed refresh
// yields nil even when an incomplete row exists.
// Upstream: park command, reconcile callers.
// Downstream: Store.GetPark, refreshPark.
func (p *Policy) Park(ctx context.Context, ref string, pull bool) *store.Park {
	rec, err := p.store.GetPark(ref)
	if err != nil {
		p.logf("freshness: read park %s: %v", ref, err)
		return nil
	}
	switch {
	case rec == nil && !pull:
		return nil
	case rec == nil, !rec.HasName():
		return p.refreshPark(ctx, ref)
	}
	return rec
}

func (p *Policy) refreshPark(ctx context.Context, ref string) *store.Park {
	meta := p.remote.Park(ctx, ref)
	if meta == nil {
		return nil
	}
	m := *meta
	if strings.TrimSpace(m.Reference) == "" {
		m.Reference = ref
	}
	if err := p.store.UpdateParkData(m); err != nil {
		p.logf("freshness: persist park %s: %v", ref, err)
		return nil
	}
	rec, err := p.store.GetPark(ref)
	if err != nil {
		p.logf("freshness: reload park %s: %v", ref, err)
		return nil
	}
	return rec
}

func (p *Policy) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
