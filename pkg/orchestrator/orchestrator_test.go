package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/battery"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/metrics"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/storage/storagemock"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
	"github.com/bitobit-development/bms-dashboard-sub000/pkg/weather"
)

// promauto registers into the default registry, so the test binary shares
// one collector.
var testMetrics = metrics.NewCollector("test_orchestrator")

func testSite() types.Site {
	return types.Site{
		ID:                  "site-001",
		Name:                "Test Site",
		LatitudeDeg:         52.52,
		LongitudeDeg:        13.405,
		SolarCapacityKW:     10,
		BatteryCapacityKWH:  40,
		NominalVoltageV:     48,
		DailyConsumptionKWH: 24,
		GridAvailable:       true,
		Profile:             types.ProfileResidential,
	}
}

// weatherServer serves an archive-style payload with hourly samples spanning
// the requested date range.
func weatherServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, err := time.Parse("2006-01-02", r.URL.Query().Get("start_date"))
		require.NoError(t, err)
		end, err := time.Parse("2006-01-02", r.URL.Query().Get("end_date"))
		require.NoError(t, err)

		var payload struct {
			Hourly struct {
				Time               []string  `json:"time"`
				Temperature2M      []float64 `json:"temperature_2m"`
				RelativeHumidity2M []float64 `json:"relative_humidity_2m"`
				CloudCover         []float64 `json:"cloud_cover"`
				ShortwaveRadiation []float64 `json:"shortwave_radiation"`
				WindSpeed10M       []float64 `json:"wind_speed_10m"`
				Precipitation      []float64 `json:"precipitation"`
				UVIndex            []float64 `json:"uv_index"`
			} `json:"hourly"`
			Daily struct {
				Time    []string `json:"time"`
				Sunrise []string `json:"sunrise"`
				Sunset  []string `json:"sunset"`
			} `json:"daily"`
		}

		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			payload.Daily.Time = append(payload.Daily.Time, d.Format("2006-01-02"))
			payload.Daily.Sunrise = append(payload.Daily.Sunrise, d.Format("2006-01-02")+"T06:00")
			payload.Daily.Sunset = append(payload.Daily.Sunset, d.Format("2006-01-02")+"T20:00")
			for h := 0; h < 24; h++ {
				ts := d.Add(time.Duration(h) * time.Hour)
				payload.Hourly.Time = append(payload.Hourly.Time, ts.Format("2006-01-02T15:04"))
				payload.Hourly.Temperature2M = append(payload.Hourly.Temperature2M, 18)
				payload.Hourly.RelativeHumidity2M = append(payload.Hourly.RelativeHumidity2M, 60)
				payload.Hourly.CloudCover = append(payload.Hourly.CloudCover, 20)
				irr := 0.0
				if h >= 7 && h <= 19 {
					irr = 600
				}
				payload.Hourly.ShortwaveRadiation = append(payload.Hourly.ShortwaveRadiation, irr)
				payload.Hourly.WindSpeed10M = append(payload.Hourly.WindSpeed10M, 3)
				payload.Hourly.Precipitation = append(payload.Hourly.Precipitation, 0)
				payload.Hourly.UVIndex = append(payload.Hourly.UVIndex, 4)
			}
		}
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	}))
}

func newTestOrchestrator(db *storagemock.MockDatabase, apiURL string) *Orchestrator {
	wp := weather.NewProvider(apiURL, nil, 24*time.Hour)
	return New(db, wp, testMetrics, nil, rand.New(rand.NewSource(7)))
}

func TestGenerateHistoryInvalidDays(t *testing.T) {
	o := newTestOrchestrator(&storagemock.MockDatabase{}, "http://unused")
	assert.ErrorIs(t, o.GenerateHistory(context.Background(), 0), ErrInvalidRange)
	assert.ErrorIs(t, o.GenerateHistory(context.Background(), -3), ErrInvalidRange)
}

func TestRunInvalidInterval(t *testing.T) {
	o := newTestOrchestrator(&storagemock.MockDatabase{}, "http://unused")
	assert.ErrorIs(t, o.Run(context.Background(), 3), ErrInvalidRange)
	assert.ErrorIs(t, o.Run(context.Background(), 0), ErrInvalidRange)
}

func TestGenerateHistory(t *testing.T) {
	srv := weatherServer(t)
	defer srv.Close()

	db := &storagemock.MockDatabase{}
	db.On("ListSites", mock.Anything).Return([]types.Site{testSite()}, nil)
	db.On("DeleteReadings", mock.Anything, "site-001", mock.Anything, mock.Anything).Return(nil)

	var inserted []types.TelemetryReading
	db.On("InsertReadings", mock.Anything, "site-001", mock.Anything).
		Run(func(args mock.Arguments) {
			inserted = append(inserted, args.Get(2).([]types.TelemetryReading)...)
		}).Return(nil)

	var aggs []types.AggregateReading
	db.On("UpsertAggregates", mock.Anything, "site-001", mock.Anything).
		Run(func(args mock.Arguments) {
			aggs = args.Get(2).([]types.AggregateReading)
		}).Return(nil)

	o := newTestOrchestrator(db, srv.URL)
	require.NoError(t, o.GenerateHistory(context.Background(), 1))

	// one day at 5-minute resolution
	assert.Len(t, inserted, 288)
	for i := 1; i < len(inserted); i++ {
		assert.True(t, inserted[i].TS.After(inserted[i-1].TS), "readings must be ordered")
	}
	for _, r := range inserted {
		assert.GreaterOrEqual(t, r.BatterySOC, 0.0)
		assert.LessOrEqual(t, r.BatterySOC, 1.0)
		assert.GreaterOrEqual(t, r.LoadKW, 0.0)
	}

	var hourly, daily int
	for _, a := range aggs {
		switch a.Period {
		case types.AggregateHourly:
			hourly++
		case types.AggregateDaily:
			daily++
		}
		assert.Equal(t, "site-001", a.SiteID)
		assert.Positive(t, a.SampleCount)
	}
	assert.GreaterOrEqual(t, hourly, 24)
	assert.GreaterOrEqual(t, daily, 1)

	db.AssertExpectations(t)
}

func TestGenerateHistoryAbortsOnPersistError(t *testing.T) {
	srv := weatherServer(t)
	defer srv.Close()

	db := &storagemock.MockDatabase{}
	db.On("ListSites", mock.Anything).Return([]types.Site{testSite()}, nil)
	db.On("DeleteReadings", mock.Anything, "site-001", mock.Anything, mock.Anything).Return(nil)
	db.On("InsertReadings", mock.Anything, "site-001", mock.Anything).
		Return(fmt.Errorf("disk on fire"))

	o := newTestOrchestrator(db, srv.URL)
	o.insertRetries = 1

	err := o.GenerateHistory(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	db.AssertNotCalled(t, "UpsertAggregates", mock.Anything, mock.Anything, mock.Anything)
}

func TestRestoreRuntimeDefaults(t *testing.T) {
	srv := weatherServer(t)
	defer srv.Close()

	db := &storagemock.MockDatabase{}
	db.On("GetLatestReading", mock.Anything, "site-001").Return(nil, nil)

	o := newTestOrchestrator(db, srv.URL)
	rt, err := o.restoreRuntime(context.Background(), testSite(), 5)
	require.NoError(t, err)

	st := rt.battery.State()
	assert.Equal(t, battery.DefaultInitialSOC, st.SOCFraction)
	assert.Equal(t, 100.0, st.HealthPct)
	assert.NotEmpty(t, rt.samples)
}

func TestRestoreRuntimeFromLastReading(t *testing.T) {
	srv := weatherServer(t)
	defer srv.Close()

	last := &types.TelemetryReading{
		SiteID:              "site-001",
		TS:                  time.Now().Add(-5 * time.Minute),
		BatterySOC:          0.42,
		BatteryVoltageV:     47.1,
		BatteryTemperatureC: 28,
		BatteryHealthPct:    97.5,
	}
	db := &storagemock.MockDatabase{}
	db.On("GetLatestReading", mock.Anything, "site-001").Return(last, nil)

	o := newTestOrchestrator(db, srv.URL)
	rt, err := o.restoreRuntime(context.Background(), testSite(), 5)
	require.NoError(t, err)

	st := rt.battery.State()
	assert.Equal(t, 0.42, st.SOCFraction)
	assert.Equal(t, 97.5, st.HealthPct)
	assert.Equal(t, 28.0, st.TemperatureC)
}

func TestTickSitePersistsReading(t *testing.T) {
	srv := weatherServer(t)
	defer srv.Close()

	db := &storagemock.MockDatabase{}
	db.On("GetLatestReading", mock.Anything, "site-001").Return(nil, nil)

	var got types.TelemetryReading
	db.On("InsertReadings", mock.Anything, "site-001", mock.Anything).
		Run(func(args mock.Arguments) {
			batch := args.Get(2).([]types.TelemetryReading)
			require.Len(t, batch, 1)
			got = batch[0]
		}).Return(nil)

	o := newTestOrchestrator(db, srv.URL)
	rt, err := o.restoreRuntime(context.Background(), testSite(), 5)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, o.tickSite(context.Background(), rt, now))
	assert.Equal(t, "site-001", got.SiteID)
	assert.Equal(t, now, got.TS)
	assert.GreaterOrEqual(t, got.BatterySOC, 0.0)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := weatherServer(t)
	defer srv.Close()

	db := &storagemock.MockDatabase{}
	db.On("ListSites", mock.Anything).Return([]types.Site{testSite()}, nil)
	db.On("GetLatestReading", mock.Anything, "site-001").Return(nil, nil)

	o := newTestOrchestrator(db, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx, 1) }()

	// give startup a moment, then stop before the first round fires
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	db.AssertNotCalled(t, "InsertReadings", mock.Anything, mock.Anything, mock.Anything)
}

func TestInsertWithRetryRecovers(t *testing.T) {
	db := &storagemock.MockDatabase{}
	db.On("InsertReadings", mock.Anything, "site-001", mock.Anything).
		Return(fmt.Errorf("transient")).Once()
	db.On("InsertReadings", mock.Anything, "site-001", mock.Anything).
		Return(nil).Once()

	o := newTestOrchestrator(db, "http://unused")
	err := o.insertWithRetry(context.Background(), "site-001", []types.TelemetryReading{{SiteID: "site-001"}})
	assert.NoError(t, err)
	db.AssertExpectations(t)
}
