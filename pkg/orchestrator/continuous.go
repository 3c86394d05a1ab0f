package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/battery"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/log"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

// weatherRefreshInterval is how often continuous mode refetches each site's
// weather window.
const weatherRefreshInterval = time.Hour

// Run generates readings for all sites on a fixed cadence until the context
// is canceled. Supported intervals are 1 and 5 minutes. Each site resumes
// from its last persisted reading so restarts do not reset battery state.
func (o *Orchestrator) Run(ctx context.Context, intervalMinutes int) error {
	if intervalMinutes != 1 && intervalMinutes != 5 {
		return fmt.Errorf("%w: interval must be 1 or 5 minutes, got %d", ErrInvalidRange, intervalMinutes)
	}

	siteList, err := o.loadSites(ctx)
	if err != nil {
		return err
	}

	runtimes := make([]*siteRuntime, 0, len(siteList))
	for _, site := range siteList {
		rt, err := o.restoreRuntime(ctx, site, float64(intervalMinutes))
		if err != nil {
			return err
		}
		runtimes = append(runtimes, rt)
	}

	log.Ctx(ctx).InfoContext(ctx, "starting continuous generation",
		slog.Int("sites", len(runtimes)),
		slog.Int("intervalMinutes", intervalMinutes),
	)

	ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Ctx(ctx).InfoContext(ctx, "stopping continuous generation")
			return nil
		case now := <-ticker.C:
			o.round(ctx, runtimes, now.UTC())
		}
	}
}

// restoreRuntime builds a site runtime seeded from the last persisted
// reading, or defaults when the site has no history.
func (o *Orchestrator) restoreRuntime(ctx context.Context, site types.Site, tickMinutes float64) (*siteRuntime, error) {
	ctx = log.WithSite(ctx, site.ID)

	var initial types.BatteryState
	last, err := o.db.GetLatestReading(ctx, site.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore site %s: %w", site.ID, err)
	}
	if last != nil {
		initial = types.BatteryState{
			SOCFraction:  last.BatterySOC,
			VoltageV:     last.BatteryVoltageV,
			TemperatureC: last.BatteryTemperatureC,
			HealthPct:    last.BatteryHealthPct,
		}
		log.Ctx(ctx).InfoContext(ctx, "restored battery state",
			slog.Time("lastReading", last.TS),
			slog.Float64("soc", last.BatterySOC),
		)
	} else {
		log.Ctx(ctx).InfoContext(ctx, "no prior readings, starting from defaults",
			slog.Float64("soc", battery.DefaultInitialSOC),
		)
	}

	rt, err := o.newRuntime(site, initial, tickMinutes)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := o.refreshWeather(ctx, rt, now.Add(-24*time.Hour), now); err != nil {
		return nil, err
	}
	return rt, nil
}

// round advances every site one tick. Failures are isolated per site; one
// bad site never stops the others.
func (o *Orchestrator) round(ctx context.Context, runtimes []*siteRuntime, now time.Time) {
	began := time.Now()
	var ok, failed int
	for _, rt := range runtimes {
		if err := o.tickSite(ctx, rt, now); err != nil {
			failed++
			log.Ctx(ctx).ErrorContext(ctx, "site tick failed",
				slog.String("siteID", rt.site.ID),
				slog.Any("error", err),
			)
		} else {
			ok++
		}
	}
	o.metrics.RoundDuration.Observe(time.Since(began).Seconds())
	log.Ctx(ctx).InfoContext(ctx, "round complete",
		slog.Time("at", now),
		slog.Int("ok", ok),
		slog.Int("failed", failed),
		slog.Duration("took", time.Since(began)),
	)
}

func (o *Orchestrator) tickSite(ctx context.Context, rt *siteRuntime, now time.Time) (err error) {
	ctx = log.WithSite(ctx, rt.site.ID)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in site tick: %v", r)
		}
	}()

	if time.Since(rt.fetchedAt) >= weatherRefreshInterval {
		if err := o.refreshWeather(ctx, rt, now.Add(-24*time.Hour), now); err != nil {
			o.metrics.TickErrors.WithLabelValues(rt.site.ID, "weather").Inc()
			return err
		}
	}

	reading, err := o.tick(rt, now)
	if err != nil {
		o.metrics.TickErrors.WithLabelValues(rt.site.ID, "simulate").Inc()
		return err
	}

	if err := o.insertWithRetry(ctx, rt.site.ID, []types.TelemetryReading{reading}); err != nil {
		o.metrics.TickErrors.WithLabelValues(rt.site.ID, "persist").Inc()
		return err
	}

	o.metrics.ReadingsGenerated.WithLabelValues(rt.site.ID).Inc()
	if o.hub != nil {
		o.hub.BroadcastReading(reading)
	}
	return nil
}
