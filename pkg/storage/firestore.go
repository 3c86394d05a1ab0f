package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/log"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

// FirestoreProvider implements Database using Google Cloud Firestore.
// Telemetry lives under sites/{siteID}/telemetry with RFC3339 doc IDs so
// range queries can filter on the document ID alone.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// Project ID verification could be here, but we allow empty if inferred.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) getCollection(siteID, name string) (*firestore.CollectionRef, error) {
	if siteID == "" {
		return nil, fmt.Errorf("siteID cannot be empty")
	}
	return f.client.Collection("sites").Doc(siteID).Collection(name), nil
}

func aggregateCollection(period types.AggregatePeriod) string {
	return "aggregates_" + string(period)
}

// InsertReadings writes a batch of readings as JSON blobs. Each document ID
// is the reading's RFC3339 timestamp, so re-running a window overwrites in
// place instead of duplicating.
func (f *FirestoreProvider) InsertReadings(ctx context.Context, siteID string, readings []types.TelemetryReading) error {
	coll, err := f.getCollection(siteID, "telemetry")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	bw := f.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(readings))
	for _, r := range readings {
		jsonBytes, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("%w: failed to marshal reading: %v", ErrPersistence, err)
		}
		docID := r.TS.UTC().Format(time.RFC3339)
		job, err := bw.Set(coll.Doc(docID), map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": r.TS,
		})
		if err != nil {
			return fmt.Errorf("%w: failed to enqueue reading %s: %v", ErrPersistence, docID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()
	// End only flushes; each job carries its own RPC outcome
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("%w: failed to write reading: %v", ErrPersistence, err)
		}
	}
	return nil
}

// DeleteReadings removes all readings in [start, end) for the site.
func (f *FirestoreProvider) DeleteReadings(ctx context.Context, siteID string, start, end time.Time) error {
	coll, err := f.getCollection(siteID, "telemetry")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	startDocID := start.UTC().Format(time.RFC3339)
	endDocID := end.UTC().Format(time.RFC3339)
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		Documents(ctx)
	defer iter.Stop()

	bw := f.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: error iterating readings for delete: %v", ErrPersistence, err)
		}
		job, err := bw.Delete(doc.Ref)
		if err != nil {
			return fmt.Errorf("%w: failed to enqueue delete: %v", ErrPersistence, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("%w: failed to delete reading: %v", ErrPersistence, err)
		}
	}
	log.Ctx(ctx).DebugContext(ctx, "deleted telemetry range",
		slog.String("siteID", siteID),
		slog.Int("count", len(jobs)),
	)
	return nil
}

// GetReadings retrieves readings within the specified time range.
// Uses document ID range queries for efficient filtering without reading all documents.
func (f *FirestoreProvider) GetReadings(ctx context.Context, siteID string, start, end time.Time) ([]types.TelemetryReading, error) {
	coll, err := f.getCollection(siteID, "telemetry")
	if err != nil {
		return nil, err
	}

	startDocID := start.UTC().Format(time.RFC3339)
	endDocID := end.UTC().Format(time.RFC3339)
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var readings []types.TelemetryReading
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating readings: %w", err)
		}

		r, err := readingFromDoc(ctx, doc, siteID)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// GetLatestReading retrieves the most recent reading for a site, or nil if
// the site has no history.
func (f *FirestoreProvider) GetLatestReading(ctx context.Context, siteID string) (*types.TelemetryReading, error) {
	coll, err := f.getCollection(siteID, "telemetry")
	if err != nil {
		return nil, err
	}

	// firestore automatically creates indexes for top-level fields
	iter := coll.
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading doc: %w", err)
	}

	r, err := readingFromDoc(ctx, doc, siteID)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func readingFromDoc(ctx context.Context, doc *firestore.DocumentSnapshot, siteID string) (types.TelemetryReading, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "reading doc missing json", slog.String("docID", doc.Ref.ID), slog.String("siteID", siteID), slog.Any("err", err))
		return types.TelemetryReading{}, fmt.Errorf("reading document %s missing 'json' field: %w", doc.Ref.ID, err)
	}

	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "reading doc json not string", slog.String("docID", doc.Ref.ID), slog.String("siteID", siteID))
		return types.TelemetryReading{}, fmt.Errorf("reading document %s 'json' field is not string", doc.Ref.ID)
	}

	var r types.TelemetryReading
	if err := json.Unmarshal([]byte(jsonStr), &r); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal reading", slog.String("docID", doc.Ref.ID), slog.String("siteID", siteID), slog.Any("err", err))
		return types.TelemetryReading{}, fmt.Errorf("failed to unmarshal reading (id=%s): %w", doc.Ref.ID, err)
	}
	return r, nil
}

// UpsertAggregates writes rollup records keyed by their period start, one
// collection per period.
func (f *FirestoreProvider) UpsertAggregates(ctx context.Context, siteID string, aggs []types.AggregateReading) error {
	for _, a := range aggs {
		if a.TSStart.IsZero() {
			return fmt.Errorf("%w: aggregate missing tsStart", ErrPersistence)
		}
		coll, err := f.getCollection(siteID, aggregateCollection(a.Period))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		jsonBytes, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("%w: failed to marshal aggregate: %v", ErrPersistence, err)
		}
		docID := a.TSStart.UTC().Format(time.RFC3339)
		if _, err := coll.Doc(docID).Set(ctx, map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": a.TSStart,
		}); err != nil {
			return fmt.Errorf("%w: failed to upsert aggregate %s: %v", ErrPersistence, docID, err)
		}
	}
	return nil
}

// GetAggregates retrieves rollup records within the specified time range.
func (f *FirestoreProvider) GetAggregates(ctx context.Context, siteID string, period types.AggregatePeriod, start, end time.Time) ([]types.AggregateReading, error) {
	coll, err := f.getCollection(siteID, aggregateCollection(period))
	if err != nil {
		return nil, err
	}

	startDocID := start.UTC().Format(time.RFC3339)
	endDocID := end.UTC().Format(time.RFC3339)
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var aggs []types.AggregateReading
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating aggregates: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			return nil, fmt.Errorf("aggregate document %s missing 'json' field: %w", doc.Ref.ID, err)
		}
		jsonStr, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("aggregate document %s 'json' field is not string", doc.Ref.ID)
		}

		var a types.AggregateReading
		if err := json.Unmarshal([]byte(jsonStr), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal aggregate (id=%s): %w", doc.Ref.ID, err)
		}
		aggs = append(aggs, a)
	}
	return aggs, nil
}

// GetSite retrieves a site from the "sites" collection.
func (f *FirestoreProvider) GetSite(ctx context.Context, siteID string) (types.Site, error) {
	doc, err := f.client.Collection("sites").Doc(siteID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Site{}, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
		}
		return types.Site{}, fmt.Errorf("failed to get site %s: %w", siteID, err)
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "site doc missing json", slog.String("siteID", siteID), slog.Any("err", err))
		return types.Site{}, fmt.Errorf("site %s missing json: %w", siteID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "site doc json not string", slog.String("siteID", siteID))
		return types.Site{}, fmt.Errorf("site %s json not string", siteID)
	}

	var site types.Site
	if err := json.Unmarshal([]byte(jsonStr), &site); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal site", slog.String("siteID", siteID), slog.Any("err", err))
		return types.Site{}, fmt.Errorf("failed to unmarshal site %s: %w", siteID, err)
	}
	return site, nil
}

// ListSites retrieves all sites from the "sites" collection.
func (f *FirestoreProvider) ListSites(ctx context.Context) ([]types.Site, error) {
	iter := f.client.Collection("sites").Documents(ctx)
	defer iter.Stop()

	var sites []types.Site
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating sites: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "site doc missing json", slog.String("siteID", doc.Ref.ID))
			// Skip malformed documents
			continue
		}
		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "site doc json not string", slog.String("siteID", doc.Ref.ID))
			continue
		}

		var site types.Site
		if err := json.Unmarshal([]byte(jsonStr), &site); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal site", slog.String("siteID", doc.Ref.ID), slog.Any("err", err))
			// Skip malformed JSON
			continue
		}
		sites = append(sites, site)
	}
	return sites, nil
}

// CreateSite creates a new site document in the "sites" collection.
func (f *FirestoreProvider) CreateSite(ctx context.Context, siteID string, site types.Site) error {
	siteJSON, err := json.Marshal(site)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal site %s: %v", ErrPersistence, siteID, err)
	}
	_, err = f.client.Collection("sites").Doc(siteID).Create(ctx, map[string]interface{}{
		"json": string(siteJSON),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to create site %s: %v", ErrPersistence, siteID, err)
	}
	return nil
}
