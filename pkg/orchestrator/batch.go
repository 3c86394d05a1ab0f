package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/log"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

// GenerateHistory backfills readings for every site at a fixed 5-minute
// step over the trailing window of whole days. Any existing readings in
// the window are deleted first, so the operation is safe to re-run after
// a failure.
func (o *Orchestrator) GenerateHistory(ctx context.Context, days int) error {
	if days <= 0 {
		return fmt.Errorf("%w: days must be positive, got %d", ErrInvalidRange, days)
	}

	siteList, err := o.loadSites(ctx)
	if err != nil {
		return err
	}

	step := batchTickMinutes * time.Minute
	end := time.Now().UTC().Truncate(step)
	start := end.AddDate(0, 0, -days)

	log.Ctx(ctx).InfoContext(ctx, "starting backfill",
		slog.Int("days", days),
		slog.Int("sites", len(siteList)),
		slog.Time("start", start),
		slog.Time("end", end),
	)

	began := time.Now()
	var total int
	for _, site := range siteList {
		n, err := o.backfillSite(ctx, site, start, end, step)
		total += n
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "backfill aborted",
				slog.String("siteID", site.ID),
				slog.Int("written", total),
				slog.Any("error", err),
			)
			return fmt.Errorf("backfill site %s: %w", site.ID, err)
		}
	}

	log.Ctx(ctx).InfoContext(ctx, "backfill complete",
		slog.Int("sites", len(siteList)),
		slog.Int("readings", total),
		slog.Duration("took", time.Since(began)),
	)
	return nil
}

func (o *Orchestrator) backfillSite(ctx context.Context, site types.Site, start, end time.Time, step time.Duration) (int, error) {
	ctx = log.WithSite(ctx, site.ID)

	// history always starts from a fresh battery
	rt, err := o.newRuntime(site, types.BatteryState{}, batchTickMinutes)
	if err != nil {
		return 0, err
	}
	if err := o.refreshWeather(ctx, rt, start, end); err != nil {
		return 0, err
	}
	if err := o.db.DeleteReadings(ctx, site.ID, start, end); err != nil {
		return 0, err
	}

	var written int
	var all []types.TelemetryReading
	batch := make([]types.TelemetryReading, 0, o.batchSize)

	for at := start; at.Before(end); at = at.Add(step) {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		r, err := o.tick(rt, at)
		if err != nil {
			return written, err
		}
		o.metrics.ReadingsGenerated.WithLabelValues(site.ID).Inc()
		all = append(all, r)
		batch = append(batch, r)
		if len(batch) >= o.batchSize {
			if err := o.insertWithRetry(ctx, site.ID, batch); err != nil {
				return written, err
			}
			written += len(batch)
			batch = batch[:0]
		}
	}
	if err := o.insertWithRetry(ctx, site.ID, batch); err != nil {
		return written, err
	}
	written += len(batch)

	tickHours := step.Hours()
	aggs := BuildAggregates(all, types.AggregateHourly, tickHours)
	aggs = append(aggs, BuildAggregates(all, types.AggregateDaily, tickHours)...)
	if err := o.db.UpsertAggregates(ctx, site.ID, aggs); err != nil {
		return written, err
	}

	log.Ctx(ctx).InfoContext(ctx, "site backfilled",
		slog.Int("readings", written),
		slog.Int("aggregates", len(aggs)),
	)
	return written, nil
}
