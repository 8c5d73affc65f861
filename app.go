package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"hunterlog/adif"
	"hunterlog/config"
	"hunterlog/freshness"
	"hunterlog/hunt"
	"hunterlog/pota"
	"hunterlog/store"

	"github.com/dustin/go-humanize"
)

// app holds every long-lived component one command may need.
type app struct {
	cfg        *config.Config
	store      *store.Store
	client     *pota.Client
	policy     *freshness.Policy
	adifLog    *adif.Log
	pipeline   *hunt.Pipeline
	reconciler *hunt.Reconciler
}

// Purpose: Build the component graph from config.
// Key aspects: The store is opened (with preflight) first; everything else
// is in-memory wiring. The ADIF backup header is written here when the file
// does not exist yet.
// Upstream: rootOptions.withApp.
// Downstream: store.Open, pota.NewClient, freshness.New, adif.Open,
// hunt.NewPipeline, hunt.NewReconciler.
func openApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.Data.Dir, err)
	}
	st, err := store.Open(cfg.Data.DBPath)
	if err != nil {
		return nil, err
	}
	adifLog, err := adif.Open(cfg.Data.ADIFLog, Version)
	if err != nil {
		st.Close()
		return nil, err
	}
	client := pota.NewClient(pota.Options{
		BaseURL:      cfg.POTA.BaseURL,
		DataDir:      cfg.Data.Dir,
		UserAgent:    cfg.UserAgent(Version),
		Timeout:      cfg.POTA.RequestTimeout,
		ActivatorTTL: cfg.POTA.ActivatorTTL,
		ParkTTL:      cfg.POTA.ParkTTL,
		AreaTTL:      cfg.POTA.AreaTTL,
		NegativeTTL:  cfg.POTA.NegativeTTL,
	})
	a := &app{
		cfg:     cfg,
		store:   st,
		client:  client,
		adifLog: adifLog,
		policy: freshness.New(client, st, freshness.Options{
			Mode:   freshness.ParseMode(cfg.Freshness.OperatorRefresh),
			MaxAge: cfg.Freshness.OperatorMaxAge,
		}),
		reconciler: hunt.NewReconciler(client, st, cfg.Reconcile.CatchUpDelay, nil),
	}
	a.pipeline = hunt.NewPipeline(hunt.PipelineOptions{
		Remote:   client,
		Store:    st,
		Sink:     adifLog,
		Notifier: hunt.NotifierFunc(a.spotsChanged),
		Station:  a.station(),
	})
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) station() adif.Station {
	return adif.Station{
		Callsign: a.cfg.Station.Callsign,
		Grid:     a.cfg.Station.Grid,
		Host:     a.cfg.Station.ADIFHost,
		Port:     a.cfg.Station.ADIFPort,
	}
}

// Purpose: React to a new spot snapshot.
// Key aspects: Runs the location alerts against the snapshot and logs each
// alert that matched; a failing check is logged and otherwise ignored.
// Upstream: hunt.Pipeline after a spot refresh, spots command.
// Downstream: store.CheckAlerts.
func (a *app) spotsChanged() {
	matches, err := a.store.CheckAlerts()
	if err != nil {
		log.Printf("alerts: check failed: %v", err)
		return
	}
	for _, m := range matches {
		if m.Spot == nil {
			continue
		}
		log.Printf("alerts: %s matched %s at %s (%s) on %s %s",
			m.Key(), m.Spot.Activator, m.Spot.Reference, m.Spot.LocationDesc, m.Spot.Frequency, m.Spot.Mode)
	}
}

// parkView is the JSON shape printed for a park row.
type parkView struct {
	Reference    string  `json:"reference"`
	Name         *string `json:"name"`
	Grid4        string  `json:"grid4,omitempty"`
	Grid6        string  `json:"grid6,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	ParkTypeDesc string  `json:"parktypeDesc,omitempty"`
	LocationDesc string  `json:"locationDesc,omitempty"`
	LocationName string  `json:"locationName,omitempty"`
	EntityName   string  `json:"entityName,omitempty"`
	Active       bool    `json:"active"`
	Hunts        int     `json:"hunts"`
	LastUpdated  string  `json:"lastUpdated,omitempty"`
}

func newParkView(p store.Park) parkView {
	v := parkView{
		Reference:    p.Reference,
		Grid4:        p.Grid4,
		Grid6:        p.Grid6,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		ParkTypeDesc: p.ParkTypeDesc,
		LocationDesc: p.LocationDesc,
		LocationName: p.LocationName,
		EntityName:   p.EntityName,
		Active:       p.Active,
		Hunts:        p.Hunts,
	}
	if p.Name.Valid {
		name := p.Name.String
		v.Name = &name
	}
	if !p.LastUpdated.IsZero() {
		v.LastUpdated = p.LastUpdated.UTC().Format(time.RFC3339)
	}
	return v
}

// activatorView is the JSON shape printed for an activator row.
type activatorView struct {
	Callsign     string `json:"callsign"`
	Name         string `json:"name"`
	QTH          string `json:"qth"`
	Activations  int    `json:"activations"`
	Parks        int    `json:"parks"`
	QSOs         int    `json:"qsos"`
	HunterParks  int    `json:"hunterParks"`
	HunterQSOs   int    `json:"hunterQsos"`
	Awards       int    `json:"awards"`
	Endorsements int    `json:"endorsements"`
	Updated      string `json:"updated"`
}

func newActivatorView(act store.Activator, now time.Time) activatorView {
	v := activatorView{
		Callsign:     act.Callsign,
		Name:         act.Name,
		QTH:          act.QTH,
		Activations:  act.Activations,
		Parks:        act.Parks,
		QSOs:         act.QSOs,
		HunterParks:  act.HunterParks,
		HunterQSOs:   act.HunterQSOs,
		Awards:       act.Awards,
		Endorsements: act.Endorsements,
		Updated:      "never",
	}
	if !act.Updated.IsZero() {
		v.Updated = humanize.RelTime(act.Updated, now, "ago", "from now")
	}
	return v
}

// huntCount is the {success, count} answer of the hunt count queries.
type huntCount struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}
