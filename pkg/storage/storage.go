package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"

	"github.com/levenlabs/go-lflag"
)

var (
	ErrSiteNotFound = errors.New("site not found")
	// ErrPersistence wraps any backend failure to write or delete telemetry.
	// Callers decide whether to retry or abort.
	ErrPersistence = errors.New("persistence error")
)

// Database defines the interface for persisting telemetry and retrieving
// site configuration.
type Database interface {
	// Telemetry
	InsertReadings(ctx context.Context, siteID string, readings []types.TelemetryReading) error
	DeleteReadings(ctx context.Context, siteID string, start, end time.Time) error
	GetReadings(ctx context.Context, siteID string, start, end time.Time) ([]types.TelemetryReading, error)
	GetLatestReading(ctx context.Context, siteID string) (*types.TelemetryReading, error)

	// Aggregates
	UpsertAggregates(ctx context.Context, siteID string, aggs []types.AggregateReading) error
	GetAggregates(ctx context.Context, siteID string, period types.AggregatePeriod, start, end time.Time) ([]types.AggregateReading, error)

	// Sites
	GetSite(ctx context.Context, siteID string) (types.Site, error)
	ListSites(ctx context.Context) ([]types.Site, error)
	CreateSite(ctx context.Context, siteID string, site types.Site) error

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, postgres)")

	var p struct{ Database }

	fs := configuredFirestore()
	pg := configuredPostgres()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "postgres":
			if err := pg.Validate(); err != nil {
				panic(fmt.Sprintf("postgres validation failed: %v", err))
			}
			p.Database = pg
			if err := pg.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("postgres init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
