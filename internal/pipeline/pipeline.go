package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"carpooltally/internal/balance"
	"carpooltally/internal/config"
	"carpooltally/internal/export"
	"carpooltally/internal/extract"
	"carpooltally/internal/ics"
	appLog "carpooltally/internal/log"
	"carpooltally/internal/model"
)

// Result is one complete accounting run: the normalized trip log, the
// folded balance, and bookkeeping about what was skipped.
type Result struct {
	Trips   []model.Trip
	Balance *balance.Balance

	// SkippedEvents counts occurrences whose text did not match the
	// carpool grammar. This is normal; calendars hold other events too.
	SkippedEvents int

	GeneratedAt time.Time
}

// Run executes one fetch -> parse -> expand -> extract -> aggregate
// pass over all configured sources.
func Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	sources := buildSources(cfg)
	if len(sources) == 0 {
		return nil, fmt.Errorf("no calendar sources configured")
	}

	f := ics.NewFetcher(cfg.CacheDir)
	fetched, fetchErrs := f.FetchAll(ctx, sources)
	if len(fetched) == 0 {
		if len(fetchErrs) > 0 {
			return nil, fmt.Errorf("all %d calendar sources failed: %w", len(sources), fetchErrs[0])
		}
		return nil, fmt.Errorf("no calendar sources produced data")
	}

	events := make([]ics.ParsedEvent, 0)
	for _, fr := range fetched {
		parsed, perr := ics.ParseICS(fr.Source, fr.Body)
		if perr != nil {
			appLog.Error("pipeline: parse failed, skipping source", perr, "id", fr.Source.ID)
			continue
		}
		events = append(events, parsed...)
	}

	now := time.Now().In(loc)
	expanded, err := ics.ExpandOccurrences(events, ics.ExpandConfig{
		AccountingLocation: loc,
		RangeStart:         now.AddDate(0, 0, -cfg.LookbackDays),
		RangeEnd:           now.AddDate(0, 0, cfg.HorizonDays),
	})
	if err != nil {
		return nil, fmt.Errorf("expand occurrences: %w", err)
	}

	res := buildResult(expanded.Occurrences, cfg)
	res.GeneratedAt = now

	appLog.Info("pipeline run completed",
		"sources", len(fetched),
		"events", len(events),
		"occurrences", len(expanded.Occurrences),
		"trips", len(res.Trips),
		"skipped", res.SkippedEvents,
		"pairs", res.Balance.Len(),
	)
	return res, nil
}

// buildResult turns expanded occurrences into trips and the balance.
// Pure except for logging; tests drive it directly with synthetic
// occurrences.
func buildResult(occurrences []model.Occurrence, cfg *config.Config) *Result {
	// Deterministic processing order. The fold is commutative, so this
	// only matters for the trip log and destination matching.
	sort.SliceStable(occurrences, func(i, j int) bool {
		return occurrences[i].Start.Before(occurrences[j].Start)
	})

	rules := extract.LocationRules{
		ValidAM:   cfg.ValidAMLocations,
		ValidPM:   cfg.ValidPMLocations,
		UnknownAM: cfg.UnknownAMLocation,
		UnknownPM: cfg.UnknownPMLocation,
	}
	opts := extract.Options{
		DropSelfPassenger: cfg.DropSelfPassenger,
		DedupePassengers:  cfg.DedupePassengers,
	}

	res := &Result{Balance: balance.New()}
	seen := make(map[string]struct{}, len(occurrences))

	for _, occ := range occurrences {
		// The same event can arrive through multiple configured sources
		// (a calendar listed both as file and as URL). iCalendar UIDs
		// are globally unique, so (UID, instance) identifies a trip.
		key := occ.UID + "\x00" + occ.InstanceKey
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		// Title and description concatenated form the event text.
		text := occ.Summary
		if occ.Description != "" {
			text += "\n" + occ.Description
		}

		rec, ok := extract.ExtractWith(text, opts)
		if !ok {
			res.SkippedEvents++
			appLog.Debug("pipeline: no carpool match", "uid", occ.UID, "summary", occ.Summary)
			continue
		}

		res.Trips = append(res.Trips, model.Trip{
			SourceID:   occ.SourceID,
			UID:        occ.UID,
			Driver:     rec.Driver,
			Passengers: rec.Passengers,
			Location:   rules.Normalize(occ.Location, occ.Start),
			AllDay:     occ.AllDay,
			Start:      occ.Start,
		})
	}

	extract.MatchDestinations(res.Trips)

	for _, t := range res.Trips {
		res.Balance.Add(t.Driver, t.Passengers)
	}

	return res
}

func buildSources(cfg *config.Config) []ics.Source {
	sources := make([]ics.Source, 0, len(cfg.CalendarFiles)+len(cfg.ICS))
	for _, p := range cfg.CalendarFiles {
		sources = append(sources, ics.Source{ID: filepath.Base(p), Path: p})
	}
	for _, s := range cfg.ICS {
		id := s.ID
		if id == "" {
			id = s.Name
		}
		sources = append(sources, ics.Source{ID: id, URL: s.URL})
	}
	return sources
}

// WriteOutputs renders the result to the configured output files.
func WriteOutputs(cfg *config.Config, res *Result) error {
	render := func(w io.Writer) error { return export.WriteCSV(w, res.Balance) }
	if cfg.Net {
		render = func(w io.Writer) error { return export.WriteNetCSV(w, res.Balance) }
	}
	if err := export.WriteFile(cfg.Output, render); err != nil {
		return fmt.Errorf("write balance csv: %w", err)
	}
	appLog.Info("balance written", "path", cfg.Output, "net", cfg.Net, "pairs", res.Balance.Len())

	if cfg.TripsOutput != "" {
		if err := export.WriteFile(cfg.TripsOutput, func(w io.Writer) error {
			return export.WriteTripsCSV(w, res.Trips)
		}); err != nil {
			return fmt.Errorf("write trips csv: %w", err)
		}
		appLog.Info("trip log written", "path", cfg.TripsOutput, "trips", len(res.Trips))
	}
	return nil
}

// Runner runs the pipeline repeatedly and retains the last good result
// for the HTTP API. Safe for concurrent use.
type Runner struct {
	cfg *config.Config

	mu   sync.RWMutex
	last *Result
}

// NewRunner constructs a Runner for the given configuration.
func NewRunner(cfg *config.Config) *Runner {
	return &Runner{cfg: cfg}
}

// RunOnce executes one pipeline pass, writes outputs, and stores the
// result. On failure the previous result is kept.
func (r *Runner) RunOnce(ctx context.Context) (*Result, error) {
	res, err := Run(ctx, r.cfg)
	if err != nil {
		return nil, err
	}
	if err := WriteOutputs(r.cfg, res); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.last = res
	r.mu.Unlock()
	return res, nil
}

// Last returns the most recent successful result, or nil.
func (r *Runner) Last() *Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Watch re-runs the pipeline on the given cron schedule until ctx is
// cancelled. Failures are logged; the last good result stays served.
func (r *Runner) Watch(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			appLog.Error("scheduled run failed", err, "schedule", spec)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}

	appLog.Info("watch mode started", "schedule", spec)
	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}
