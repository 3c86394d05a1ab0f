package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/storage"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) InsertReadings(ctx context.Context, siteID string, readings []types.TelemetryReading) error {
	args := m.Called(ctx, siteID, readings)
	return args.Error(0)
}

func (m *MockDatabase) DeleteReadings(ctx context.Context, siteID string, start, end time.Time) error {
	args := m.Called(ctx, siteID, start, end)
	return args.Error(0)
}

func (m *MockDatabase) GetReadings(ctx context.Context, siteID string, start, end time.Time) ([]types.TelemetryReading, error) {
	args := m.Called(ctx, siteID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.TelemetryReading), args.Error(1)
}

func (m *MockDatabase) GetLatestReading(ctx context.Context, siteID string) (*types.TelemetryReading, error) {
	args := m.Called(ctx, siteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.TelemetryReading), args.Error(1)
}

func (m *MockDatabase) UpsertAggregates(ctx context.Context, siteID string, aggs []types.AggregateReading) error {
	args := m.Called(ctx, siteID, aggs)
	return args.Error(0)
}

func (m *MockDatabase) GetAggregates(ctx context.Context, siteID string, period types.AggregatePeriod, start, end time.Time) ([]types.AggregateReading, error) {
	args := m.Called(ctx, siteID, period, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.AggregateReading), args.Error(1)
}

func (m *MockDatabase) GetSite(ctx context.Context, siteID string) (types.Site, error) {
	args := m.Called(ctx, siteID)
	if args.Get(0) == nil {
		return types.Site{}, args.Error(1)
	}
	return args.Get(0).(types.Site), args.Error(1)
}

func (m *MockDatabase) ListSites(ctx context.Context) ([]types.Site, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Site), args.Error(1)
}

func (m *MockDatabase) CreateSite(ctx context.Context, siteID string, site types.Site) error {
	args := m.Called(ctx, siteID, site)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
