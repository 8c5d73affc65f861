package hunt

import (
	"context"
	"log"
	"strings"
	"time"

	"hunterlog/adif"
	"hunterlog/bands"
	"hunterlog/maidenhead"
	"hunterlog/pota"
	"hunterlog/store"
	"hunterlog/strutil"
)

// PipelineStore is the persistence the contact pipeline needs.
type PipelineStore interface {
	IncParkHunt(ref string, meta *pota.Park) error
	InsertQSO(q store.QSO) (int64, error)
	GetQSO(id int64) (*store.QSO, error)
	ActivatorName(call string) (string, bool, error)
	ReplaceSpots(spots []pota.Spot) error
	GetSpot(id int64) (*pota.Spot, error)
}

// PipelineOptions wires a Pipeline.
type PipelineOptions struct {
	Remote   Remote
	Store    PipelineStore
	Sink     Sink
	Notifier Notifier
	Station  adif.Station
	Now      func() time.Time
	Logger   *log.Logger
}

// Pipeline logs hunted contacts.
type Pipeline struct {
	remote   Remote
	store    PipelineStore
	sink     Sink
	notifier Notifier
	station  adif.Station
	now      func() time.Time
	logger   *log.Logger
}

// NewPipeline builds a Pipeline; Notifier and Logger may be nil.
func NewPipeline(opts PipelineOptions) *Pipeline {
	p := &Pipeline{
		remote:   opts.Remote,
		store:    opts.Store,
		sink:     opts.Sink,
		notifier: opts.Notifier,
		station:  opts.Station,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Purpose: Record one hunted contact everywhere it needs to go.
// Key aspects: Steps run in order: park metadata fetch, hunt increment, QSO
// insert, record emission, spot refresh, notification. A failure in the
// first three is logged and the rest still run, so a contact is never lost
// because the park lookup failed. The activator name used for emission is
// resolved from the store at this point and never written back.
// Upstream: log command.
// Downstream: Remote.Park, PipelineStore, Sink.LogQSO, Remote.Spots, Notifier.
func (p *Pipeline) LogContact(ctx context.Context, in ContactInput) Result {
	ref := strutil.NormalizeUpper(in.SigInfo)
	call := strutil.NormalizeUpper(in.Call)
	if ref == "" {
		return failed("contact has no park reference (sig_info)")
	}
	if call == "" {
		return failed("contact has no call")
	}
	ts, err := contactTime(in.QSODate, in.TimeOn, p.now())
	if err != nil {
		return failed("contact time: %v", err)
	}

	var problems []string

	park := p.remote.Park(ctx, ref)
	if park == nil {
		p.logf("hunt: park %s metadata unavailable; counting hunt without it", ref)
		problems = append(problems, "park lookup failed")
	}
	if err := p.store.IncParkHunt(ref, park); err != nil {
		p.logf("hunt: increment hunts for %s: %v", ref, err)
		problems = append(problems, "hunt count not updated")
	}

	q := p.toQSO(in, call, ref, ts)
	id, err := p.store.InsertQSO(q)
	if err != nil {
		p.logf("hunt: insert qso %s@%s: %v", call, ref, err)
		problems = append(problems, "qso not saved")
	} else if stored, err := p.store.GetQSO(id); err != nil || stored == nil {
		p.logf("hunt: reload qso %d: %v", id, err)
		q.ID = id
	} else {
		q = *stored
	}

	q.Name = p.activatorName(call)
	logged := true
	if err := p.sink.LogQSO(q, p.station); err != nil {
		p.logf("hunt: write adif for %s@%s: %v", call, ref, err)
		problems = append(problems, "adif log not written")
		logged = false
	}

	p.refreshSpots(ctx)

	res := Result{Success: id > 0 && logged, QSOID: id}
	res.Message = "logged " + call + " at " + ref
	if len(problems) > 0 {
		res.Message += " (" + strings.Join(problems, "; ") + ")"
	}
	return res
}

func (p *Pipeline) toQSO(in ContactInput, call, ref string, ts time.Time) store.QSO {
	sig := strutil.NormalizeUpper(in.Sig)
	if sig == "" {
		sig = "POTA"
	}
	q := store.QSO{
		Call:       call,
		Name:       strings.TrimSpace(in.Name),
		State:      strings.TrimSpace(in.State),
		RSTSent:    strings.TrimSpace(in.RSTSent),
		RSTRecv:    strings.TrimSpace(in.RSTRecv),
		Freq:       strings.TrimSpace(in.Freq),
		Mode:       strings.TrimSpace(in.Mode),
		Time:       ts,
		Gridsquare: strutil.NormalizeGrid(in.Gridsquare),
		Sig:        sig,
		SigInfo:    ref,
		Distance:   in.Distance,
		Bearing:    in.Bearing,
		Comment:    in.Comment,
		FromApp:    true,
	}
	if label := strings.TrimSpace(in.Band); label != "" {
		if name, ok := bands.Canonical(label); ok {
			q.Band = name
		} else {
			p.logf("hunt: unknown band %q for %s@%s; deriving it from the frequency", label, call, ref)
		}
	}
	if q.Distance == 0 && q.Bearing == 0 {
		if miles, bearing, ok := maidenhead.Path(p.station.Grid, q.Gridsquare); ok {
			q.Distance, q.Bearing = miles, bearing
		}
	}
	return q
}

func (p *Pipeline) activatorName(call string) string {
	name, ok, err := p.store.ActivatorName(call)
	if err != nil {
		p.logf("hunt: activator name %s: %v", call, err)
	}
	if err != nil || !ok || strings.TrimSpace(name) == "" {
		return NoName
	}
	return name
}

func (p *Pipeline) refreshSpots(ctx context.Context) {
	spots := p.remote.Spots(ctx)
	if spots == nil {
		p.logf("hunt: spot refresh skipped, no spot list")
		return
	}
	if err := p.store.ReplaceSpots(spots); err != nil {
		p.logf("hunt: replace spots: %v", err)
		return
	}
	if p.notifier != nil {
		p.notifier.SpotsChanged()
	}
}

// Purpose: Prefill a contact from a spot in the stored snapshot.
// Key aspects: RST defaults to 59 (599 for CW and data modes); the state is
// the subdivision of the first location descriptor; distance and bearing
// come from the station grid to the spot's grid.
// Upstream: log --spot command.
// Downstream: PipelineStore.GetSpot, PipelineStore.ActivatorName, maidenhead.Path.
func (p *Pipeline) ContactFromSpot(spotID int64) (ContactInput, bool) {
	sp, err := p.store.GetSpot(spotID)
	if err != nil {
		p.logf("hunt: load spot %d: %v", spotID, err)
		return ContactInput{}, false
	}
	if sp == nil {
		return ContactInput{}, false
	}
	grid := strings.TrimSpace(sp.Grid6)
	if grid == "" {
		grid = strings.TrimSpace(sp.Grid4)
	}
	rst := "59"
	switch strutil.NormalizeUpper(sp.Mode) {
	case "CW", "FT8", "FT4", "RTTY", "DATA", "PSK31":
		rst = "599"
	}
	in := ContactInput{
		Call:       sp.Activator,
		State:      stateFromLocation(sp.LocationDesc),
		RSTSent:    rst,
		RSTRecv:    rst,
		Freq:       sp.Frequency,
		Mode:       sp.Mode,
		Gridsquare: grid,
		Sig:        "POTA",
		SigInfo:    sp.Reference,
	}
	if name, ok, err := p.store.ActivatorName(sp.Activator); err == nil && ok {
		in.Name = name
	}
	if miles, bearing, ok := maidenhead.Path(p.station.Grid, grid); ok {
		in.Distance, in.Bearing = miles, bearing
	}
	return in, true
}

// stateFromLocation returns "CA" for "US-CA" and "US-CA,US-NV".
func stateFromLocation(desc string) string {
	first, _, _ := strings.Cut(desc, ",")
	_, sub, ok := strings.Cut(strings.TrimSpace(first), "-")
	if !ok {
		return ""
	}
	return sub
}

func (p *Pipeline) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
