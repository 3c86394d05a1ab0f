package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/levenlabs/go-lflag"
	_ "github.com/lib/pq"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

// insertChunkSize bounds a multi-row insert so we stay well under the
// postgres parameter limit (65535) with 16 columns per row.
const insertChunkSize = 500

// PostgresProvider implements Database on postgres via sqlx. It is the
// alternative to Firestore for deployments that already run postgres.
type PostgresProvider struct {
	db  *sqlx.DB
	dsn string
}

// configuredPostgres sets up the postgres provider.
// It registers flags for configuration.
func configuredPostgres() *PostgresProvider {
	dsn := lflag.String("postgres-dsn", "", "Postgres connection string (required when storage-provider=postgres)")

	p := &PostgresProvider{}

	lflag.Do(func() {
		p.dsn = *dsn
	})

	return p
}

// Validate checks if the provider is properly configured.
func (p *PostgresProvider) Validate() error {
	if p.dsn == "" {
		return fmt.Errorf("postgres-dsn is required")
	}
	return nil
}

// Init opens the connection pool and ensures the schema exists.
func (p *PostgresProvider) Init(ctx context.Context) error {
	db, err := sqlx.ConnectContext(ctx, "postgres", p.dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	p.db = db
	return p.ensureSchema(ctx)
}

// Close closes the connection pool.
func (p *PostgresProvider) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *PostgresProvider) ensureSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS sites (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			latitude_deg DOUBLE PRECISION NOT NULL,
			longitude_deg DOUBLE PRECISION NOT NULL,
			solar_capacity_kw DOUBLE PRECISION NOT NULL,
			battery_capacity_kwh DOUBLE PRECISION NOT NULL,
			nominal_voltage_v DOUBLE PRECISION NOT NULL,
			daily_consumption_kwh DOUBLE PRECISION NOT NULL,
			grid_available BOOLEAN NOT NULL,
			profile TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS telemetry_readings (
			site_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			battery_soc DOUBLE PRECISION NOT NULL,
			battery_voltage_v DOUBLE PRECISION NOT NULL,
			battery_current_a DOUBLE PRECISION NOT NULL,
			battery_temperature_c DOUBLE PRECISION NOT NULL,
			battery_health_pct DOUBLE PRECISION NOT NULL,
			battery_net_kw DOUBLE PRECISION NOT NULL,
			solar_kw DOUBLE PRECISION NOT NULL,
			solar_efficiency_pct DOUBLE PRECISION NOT NULL,
			load_kw DOUBLE PRECISION NOT NULL,
			unmet_load_kw DOUBLE PRECISION NOT NULL,
			grid_import_kw DOUBLE PRECISION NOT NULL,
			grid_export_kw DOUBLE PRECISION NOT NULL,
			ambient_temperature_c DOUBLE PRECISION NOT NULL,
			condition TEXT NOT NULL,
			PRIMARY KEY (site_id, ts)
		)`,
		`CREATE TABLE IF NOT EXISTS telemetry_aggregates (
			site_id TEXT NOT NULL,
			period TEXT NOT NULL,
			ts_start TIMESTAMPTZ NOT NULL,
			sample_count INTEGER NOT NULL,
			avg_battery_soc DOUBLE PRECISION NOT NULL,
			min_battery_soc DOUBLE PRECISION NOT NULL,
			max_battery_soc DOUBLE PRECISION NOT NULL,
			avg_load_kw DOUBLE PRECISION NOT NULL,
			peak_load_kw DOUBLE PRECISION NOT NULL,
			solar_kwh DOUBLE PRECISION NOT NULL,
			load_kwh DOUBLE PRECISION NOT NULL,
			grid_import_kwh DOUBLE PRECISION NOT NULL,
			grid_export_kwh DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (site_id, period, ts_start)
		)`,
	}
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// InsertReadings writes a batch with multi-row upserts, chunked to respect
// the parameter limit. Re-running a window overwrites in place.
func (p *PostgresProvider) InsertReadings(ctx context.Context, siteID string, readings []types.TelemetryReading) error {
	for start := 0; start < len(readings); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(readings) {
			end = len(readings)
		}
		if err := p.insertChunk(ctx, siteID, readings[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresProvider) insertChunk(ctx context.Context, siteID string, readings []types.TelemetryReading) error {
	if len(readings) == 0 {
		return nil
	}
	query, args := buildReadingsInsert(siteID, readings)
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: failed to insert readings: %v", ErrPersistence, err)
	}
	return nil
}

// buildReadingsInsert renders one multi-row upsert for the chunk.
func buildReadingsInsert(siteID string, readings []types.TelemetryReading) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO telemetry_readings (
		site_id, ts, battery_soc, battery_voltage_v, battery_current_a,
		battery_temperature_c, battery_health_pct, battery_net_kw, solar_kw,
		solar_efficiency_pct, load_kw, unmet_load_kw, grid_import_kw,
		grid_export_kw, ambient_temperature_c, condition
	) VALUES `)

	args := make([]interface{}, 0, len(readings)*16)
	for i, r := range readings {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 16
		sb.WriteString("(")
		for j := 1; j <= 16; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteString(")")
		args = append(args,
			siteID, r.TS.UTC(), r.BatterySOC, r.BatteryVoltageV, r.BatteryCurrentA,
			r.BatteryTemperatureC, r.BatteryHealthPct, r.BatteryNetKW, r.SolarKW,
			r.SolarEfficiencyPct, r.LoadKW, r.UnmetLoadKW, r.GridImportKW,
			r.GridExportKW, r.AmbientTemperatureC, r.Condition,
		)
	}
	sb.WriteString(` ON CONFLICT (site_id, ts) DO UPDATE SET
		battery_soc = EXCLUDED.battery_soc,
		battery_voltage_v = EXCLUDED.battery_voltage_v,
		battery_current_a = EXCLUDED.battery_current_a,
		battery_temperature_c = EXCLUDED.battery_temperature_c,
		battery_health_pct = EXCLUDED.battery_health_pct,
		battery_net_kw = EXCLUDED.battery_net_kw,
		solar_kw = EXCLUDED.solar_kw,
		solar_efficiency_pct = EXCLUDED.solar_efficiency_pct,
		load_kw = EXCLUDED.load_kw,
		unmet_load_kw = EXCLUDED.unmet_load_kw,
		grid_import_kw = EXCLUDED.grid_import_kw,
		grid_export_kw = EXCLUDED.grid_export_kw,
		ambient_temperature_c = EXCLUDED.ambient_temperature_c,
		condition = EXCLUDED.condition`)

	return sb.String(), args
}

// DeleteReadings removes all readings in [start, end) for the site.
func (p *PostgresProvider) DeleteReadings(ctx context.Context, siteID string, start, end time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM telemetry_readings WHERE site_id = $1 AND ts >= $2 AND ts < $3`,
		siteID, start.UTC(), end.UTC())
	if err != nil {
		return fmt.Errorf("%w: failed to delete readings: %v", ErrPersistence, err)
	}
	return nil
}

// GetReadings retrieves readings within [start, end) ordered by timestamp.
func (p *PostgresProvider) GetReadings(ctx context.Context, siteID string, start, end time.Time) ([]types.TelemetryReading, error) {
	var readings []types.TelemetryReading
	err := p.db.SelectContext(ctx, &readings,
		`SELECT * FROM telemetry_readings WHERE site_id = $1 AND ts >= $2 AND ts < $3 ORDER BY ts ASC`,
		siteID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get readings: %w", err)
	}
	return readings, nil
}

// GetLatestReading retrieves the most recent reading for a site, or nil if
// the site has no history.
func (p *PostgresProvider) GetLatestReading(ctx context.Context, siteID string) (*types.TelemetryReading, error) {
	var r types.TelemetryReading
	err := p.db.GetContext(ctx, &r,
		`SELECT * FROM telemetry_readings WHERE site_id = $1 ORDER BY ts DESC LIMIT 1`,
		siteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}
	return &r, nil
}

// UpsertAggregates writes rollup records keyed by (site, period, start).
func (p *PostgresProvider) UpsertAggregates(ctx context.Context, siteID string, aggs []types.AggregateReading) error {
	for _, a := range aggs {
		if a.TSStart.IsZero() {
			return fmt.Errorf("%w: aggregate missing tsStart", ErrPersistence)
		}
		_, err := p.db.ExecContext(ctx,
			`INSERT INTO telemetry_aggregates (
				site_id, period, ts_start, sample_count,
				avg_battery_soc, min_battery_soc, max_battery_soc,
				avg_load_kw, peak_load_kw, solar_kwh, load_kwh,
				grid_import_kwh, grid_export_kwh
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (site_id, period, ts_start) DO UPDATE SET
				sample_count = EXCLUDED.sample_count,
				avg_battery_soc = EXCLUDED.avg_battery_soc,
				min_battery_soc = EXCLUDED.min_battery_soc,
				max_battery_soc = EXCLUDED.max_battery_soc,
				avg_load_kw = EXCLUDED.avg_load_kw,
				peak_load_kw = EXCLUDED.peak_load_kw,
				solar_kwh = EXCLUDED.solar_kwh,
				load_kwh = EXCLUDED.load_kwh,
				grid_import_kwh = EXCLUDED.grid_import_kwh,
				grid_export_kwh = EXCLUDED.grid_export_kwh`,
			siteID, a.Period, a.TSStart.UTC(), a.SampleCount,
			a.AvgBatterySOC, a.MinBatterySOC, a.MaxBatterySOC,
			a.AvgLoadKW, a.PeakLoadKW, a.SolarKWH, a.LoadKWH,
			a.GridImportKWH, a.GridExportKWH)
		if err != nil {
			return fmt.Errorf("%w: failed to upsert aggregate: %v", ErrPersistence, err)
		}
	}
	return nil
}

// GetAggregates retrieves rollup records within [start, end).
func (p *PostgresProvider) GetAggregates(ctx context.Context, siteID string, period types.AggregatePeriod, start, end time.Time) ([]types.AggregateReading, error) {
	var aggs []types.AggregateReading
	err := p.db.SelectContext(ctx, &aggs,
		`SELECT * FROM telemetry_aggregates
		WHERE site_id = $1 AND period = $2 AND ts_start >= $3 AND ts_start < $4
		ORDER BY ts_start ASC`,
		siteID, period, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregates: %w", err)
	}
	return aggs, nil
}

// GetSite retrieves a site row.
func (p *PostgresProvider) GetSite(ctx context.Context, siteID string) (types.Site, error) {
	var site types.Site
	err := p.db.GetContext(ctx, &site, `SELECT * FROM sites WHERE id = $1`, siteID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Site{}, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
	}
	if err != nil {
		return types.Site{}, fmt.Errorf("failed to get site %s: %w", siteID, err)
	}
	return site, nil
}

// ListSites retrieves all site rows.
func (p *PostgresProvider) ListSites(ctx context.Context) ([]types.Site, error) {
	var sites []types.Site
	err := p.db.SelectContext(ctx, &sites, `SELECT * FROM sites ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	return sites, nil
}

// CreateSite inserts a site row, failing on duplicate IDs.
func (p *PostgresProvider) CreateSite(ctx context.Context, siteID string, site types.Site) error {
	site.ID = siteID
	_, err := p.db.NamedExecContext(ctx,
		`INSERT INTO sites (
			id, name, latitude_deg, longitude_deg, solar_capacity_kw,
			battery_capacity_kwh, nominal_voltage_v, daily_consumption_kwh,
			grid_available, profile
		) VALUES (
			:id, :name, :latitude_deg, :longitude_deg, :solar_capacity_kw,
			:battery_capacity_kwh, :nominal_voltage_v, :daily_consumption_kwh,
			:grid_available, :profile
		)`, site)
	if err != nil {
		return fmt.Errorf("%w: failed to create site %s: %v", ErrPersistence, siteID, err)
	}
	return nil
}
