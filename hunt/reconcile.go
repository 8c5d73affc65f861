package hunt

import (
	"context"
	"fmt"
	"log"
	"time"

	"hunterlog/internal/ratelimit"
	"hunterlog/pota"
	"hunterlog/store"
)

const (
	// DefaultCatchUpDelay spaces remote calls during the metadata catch-up.
	DefaultCatchUpDelay = time.Millisecond

	progressLogInterval = 5 * time.Second
)

// ReconcileStore is the persistence the reconciler needs.
type ReconcileStore interface {
	SetParkHunts(counts map[string]int) (int, error)
	Parks() ([]store.Park, error)
	UpdateParkData(p pota.Park) error
}

// ParkSource fetches park metadata.
type ParkSource interface {
	Park(ctx context.Context, ref string) *pota.Park
}

// Reconciler overwrites hunt counts from an authoritative source and fills
// in park metadata that has never been fetched.
type Reconciler struct {
	remote ParkSource
	store  ReconcileStore
	delay  time.Duration
	logger *log.Logger
}

// NewReconciler builds a Reconciler. A non-positive delay uses
// DefaultCatchUpDelay.
func NewReconciler(remote ParkSource, st ReconcileStore, delay time.Duration, logger *log.Logger) *Reconciler {
	if delay <= 0 {
		delay = DefaultCatchUpDelay
	}
	return &Reconciler{remote: remote, store: st, delay: delay, logger: logger}
}

// Purpose: Apply a count file then fill missing park metadata.
// Key aspects: Parse failure stops before any write; the catch-up runs even
// when some counts could not be applied.
// Upstream: reconcile command.
// Downstream: ParseCountFile, ApplyCounts, CatchUpAllMetadata.
func (r *Reconciler) ReconcileFromCountFile(ctx context.Context, path string) Result {
	counts, err := ParseCountFile(path)
	if err != nil {
		r.logf("hunt: %v", err)
		return failed("could not read count file: %v", err)
	}
	applied := r.ApplyCounts(counts)
	if !applied.Success {
		return applied
	}
	caught := r.CatchUpAllMetadata(ctx)
	return Result{
		Success: caught.Success,
		Message: applied.Message + "; " + caught.Message,
		Count:   applied.Count,
	}
}

// ApplyCounts overwrites the hunt count of every listed park in one
// transaction. Parks not yet known are created without a name.
func (r *Reconciler) ApplyCounts(counts map[string]int) Result {
	n, err := r.store.SetParkHunts(counts)
	if err != nil {
		r.logf("hunt: apply counts: %v", err)
		return failed("hunt counts not applied: %v", err)
	}
	return Result{Success: true, Message: fmt.Sprintf("updated hunts for %d parks", n), Count: n}
}

// Purpose: Fetch metadata for every park that still has no name.
// Key aspects: One remote call at a time with a fixed delay between calls;
// parks the remote cannot resolve are skipped and counted; cancellation
// stops the pass and reports what was done.
// Upstream: ReconcileFromCountFile, catchup command.
// Downstream: ReconcileStore.Parks, ParkSource.Park, ReconcileStore.UpdateParkData.
func (r *Reconciler) CatchUpAllMetadata(ctx context.Context) Result {
	parks, err := r.store.Parks()
	if err != nil {
		r.logf("hunt: list parks: %v", err)
		return failed("could not list parks: %v", err)
	}
	pending := 0
	for _, park := range parks {
		if !park.HasName() {
			pending++
		}
	}
	progress := ratelimit.NewGate(progressLogInterval, nil)
	updated, missing, calls := 0, 0, 0
	for _, park := range parks {
		if park.HasName() {
			continue
		}
		if n, ok := progress.Tick(); ok {
			r.logf("hunt: catch-up %d/%d parks (%d filled, %d unresolved)", n, pending, updated, missing)
		}
		if calls > 0 {
			if err := sleepCtx(ctx, r.delay); err != nil {
				return Result{
					Success: false,
					Message: fmt.Sprintf("catch-up cancelled after %d parks (%d unresolved)", updated, missing),
					Count:   updated,
				}
			}
		}
		calls++
		meta := r.remote.Park(ctx, park.Reference)
		if meta == nil {
			missing++
			continue
		}
		m := *meta
		m.Reference = park.Reference
		if err := r.store.UpdateParkData(m); err != nil {
			r.logf("hunt: update park %s: %v", park.Reference, err)
			missing++
			continue
		}
		updated++
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("filled metadata for %d parks (%d unresolved)", updated, missing),
		Count:   updated,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Reconciler) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
