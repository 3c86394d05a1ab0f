package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/battery"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/load"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/log"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/metrics"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/sites"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/solar"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/storage"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/stream"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/weather"
)

// ErrInvalidRange is returned for a non-positive backfill window or an
// unsupported tick interval.
var ErrInvalidRange = errors.New("invalid range")

// batchTickMinutes is the fixed step for historical backfill.
const batchTickMinutes = 5

// Orchestrator drives the simulation across all configured sites, in batch
// backfill or continuous mode.
type Orchestrator struct {
	db      storage.Database
	weather *weather.Provider
	metrics *metrics.Collector
	hub     *stream.Hub

	solarModel *solar.Model
	loadModel  *load.Model

	batchSize     int
	insertRetries int
	sitesFile     string
}

// Configured initializes the Orchestrator with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(db storage.Database, wp *weather.Provider, mc *metrics.Collector, hub *stream.Hub) *Orchestrator {
	o := &Orchestrator{
		db:         db,
		weather:    wp,
		metrics:    mc,
		hub:        hub,
		solarModel: solar.NewModel(),
		loadModel:  load.NewModel(nil),
	}

	batchSize := 500
	lflag.JSON(&batchSize, "batch-size", batchSize, "Readings per storage batch flush during backfill")
	insertRetries := 3
	lflag.JSON(&insertRetries, "insert-retries", insertRetries, "Attempts per storage batch before aborting")
	sitesFile := lflag.String("sites-file", "", "YAML file with site definitions (defaults to sites from storage)")

	lflag.Do(func() {
		o.batchSize = batchSize
		o.insertRetries = insertRetries
		o.sitesFile = *sitesFile
	})

	return o
}

// New builds an Orchestrator without flag registration, for tests.
func New(db storage.Database, wp *weather.Provider, mc *metrics.Collector, hub *stream.Hub, rng *rand.Rand) *Orchestrator {
	return &Orchestrator{
		db:            db,
		weather:       wp,
		metrics:       mc,
		hub:           hub,
		solarModel:    solar.NewModel(),
		loadModel:     load.NewModel(rng),
		batchSize:     500,
		insertRetries: 3,
	}
}

// siteRuntime bundles everything one site needs for simulation. It is owned
// by a single goroutine.
type siteRuntime struct {
	site        types.Site
	loc         weather.Location
	solarCfg    types.SiteSolarConfig
	loadProfile types.LoadProfile
	battery     *battery.Simulator

	// current weather window, ordered by TS
	samples   []types.WeatherSample
	fetchedAt time.Time
}

// loadSites resolves the site list from the configured YAML file or, when
// none is set, from storage.
func (o *Orchestrator) loadSites(ctx context.Context) ([]types.Site, error) {
	if o.sitesFile != "" {
		return sites.LoadFile(o.sitesFile)
	}
	list, err := o.db.ListSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sites from storage: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no sites configured")
	}
	for _, s := range list {
		if err := sites.Validate(s); err != nil {
			return nil, fmt.Errorf("site %s: %w", s.ID, err)
		}
	}
	return list, nil
}

// newRuntime builds the per-site runtime. The initial battery state comes
// from the caller; a zero value defaults inside the simulator.
func (o *Orchestrator) newRuntime(site types.Site, initial types.BatteryState, tickMinutes float64) (*siteRuntime, error) {
	sim, err := battery.NewSimulator(battery.Config{
		CapacityKWH:     site.BatteryCapacityKWH,
		NominalVoltageV: site.NominalVoltageV,
		TickMinutes:     tickMinutes,
	}, initial)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", site.ID, err)
	}
	return &siteRuntime{
		site:        site,
		loc:         weather.Location{LatitudeDeg: site.LatitudeDeg, LongitudeDeg: site.LongitudeDeg},
		solarCfg:    sites.SolarConfigFor(site),
		loadProfile: sites.LoadProfileFor(site),
		battery:     sim,
	}, nil
}

// tick advances one site by one step and returns the resulting reading.
func (o *Orchestrator) tick(rt *siteRuntime, at time.Time) (types.TelemetryReading, error) {
	sample, err := weather.Interpolate(rt.samples, at)
	if err != nil {
		return types.TelemetryReading{}, fmt.Errorf("site %s: %w", rt.site.ID, err)
	}

	solarKW, solarEff := o.solarModel.ProducePowerKW(sample, rt.solarCfg, at)
	loadKW := o.loadModel.DemandKW(rt.loadProfile, sample, at)
	res := rt.battery.Simulate(solarKW, loadKW, sample.TemperatureC, rt.site.GridAvailable)

	return types.TelemetryReading{
		SiteID:              rt.site.ID,
		TS:                  at.UTC(),
		BatterySOC:          res.State.SOCFraction,
		BatteryVoltageV:     res.State.VoltageV,
		BatteryCurrentA:     res.State.CurrentA,
		BatteryTemperatureC: res.State.TemperatureC,
		BatteryHealthPct:    res.State.HealthPct,
		BatteryNetKW:        res.NetKW,
		SolarKW:             solarKW,
		SolarEfficiencyPct:  solarEff,
		LoadKW:              loadKW,
		UnmetLoadKW:         res.UnmetLoadKW,
		GridImportKW:        res.GridImportKW,
		GridExportKW:        res.GridExportKW,
		AmbientTemperatureC: sample.TemperatureC,
		Condition:           sample.Condition,
	}, nil
}

// insertWithRetry flushes a batch, retrying transient storage failures with
// a short backoff before giving up.
func (o *Orchestrator) insertWithRetry(ctx context.Context, siteID string, readings []types.TelemetryReading) error {
	if len(readings) == 0 {
		return nil
	}
	var err error
	for attempt := 1; attempt <= o.insertRetries; attempt++ {
		err = o.db.InsertReadings(ctx, siteID, readings)
		if err == nil {
			o.metrics.BatchFlushSize.Observe(float64(len(readings)))
			return nil
		}
		o.metrics.PersistFailures.WithLabelValues(siteID).Inc()
		log.Ctx(ctx).WarnContext(ctx, "batch insert failed",
			slog.String("siteID", siteID),
			slog.Int("attempt", attempt),
			slog.Int("count", len(readings)),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", o.insertRetries, err)
}

// refreshWeather fetches the window [start, end) for the site, keeping the
// previous window on upstream failure so simulation can continue on stale
// data.
func (o *Orchestrator) refreshWeather(ctx context.Context, rt *siteRuntime, start, end time.Time) error {
	samples, err := o.weather.Fetch(ctx, rt.loc, start, end)
	if err != nil {
		o.metrics.WeatherFetches.WithLabelValues("error").Inc()
		if len(rt.samples) > 0 {
			log.Ctx(ctx).WarnContext(ctx, "weather refresh failed, reusing stale window",
				slog.String("siteID", rt.site.ID),
				slog.Any("error", err),
			)
			return nil
		}
		return fmt.Errorf("site %s has no weather data: %w", rt.site.ID, err)
	}
	o.metrics.WeatherFetches.WithLabelValues("ok").Inc()
	rt.samples = samples
	rt.fetchedAt = time.Now()
	return nil
}
