package weather

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

func hourlySeries() []types.WeatherSample {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	return []types.WeatherSample{
		{
			TS:                 base,
			TemperatureC:       20,
			CloudCoverPct:      10,
			SolarIrradianceWM2: 400,
			PrecipitationMM:    1.2,
			Condition:          types.ConditionRainy,
		},
		{
			TS:                 base.Add(time.Hour),
			TemperatureC:       22,
			CloudCoverPct:      30,
			SolarIrradianceWM2: 600,
			PrecipitationMM:    0,
			Condition:          types.ConditionClear,
		},
		{
			TS:                 base.Add(2 * time.Hour),
			TemperatureC:       24,
			CloudCoverPct:      50,
			SolarIrradianceWM2: 500,
		},
	}
}

func TestInterpolateEmpty(t *testing.T) {
	_, err := Interpolate(nil, time.Now())
	assert.Error(t, err)
}

func TestInterpolateExactKnot(t *testing.T) {
	samples := hourlySeries()
	got, err := Interpolate(samples, samples[1].TS)
	require.NoError(t, err)
	assert.Equal(t, samples[1], got)
}

func TestInterpolateMidpoint(t *testing.T) {
	samples := hourlySeries()
	at := samples[0].TS.Add(30 * time.Minute)

	got, err := Interpolate(samples, at)
	require.NoError(t, err)
	assert.Equal(t, at, got.TS)
	assert.InDelta(t, 21, got.TemperatureC, 1e-9)
	assert.InDelta(t, 20, got.CloudCoverPct, 1e-9)
	assert.InDelta(t, 500, got.SolarIrradianceWM2, 1e-9)
	// carried from the earlier sample, not interpolated
	assert.InDelta(t, 1.2, got.PrecipitationMM, 1e-9)
	assert.Equal(t, types.ConditionRainy, got.Condition)
}

func TestInterpolateClampsOutOfRange(t *testing.T) {
	samples := hourlySeries()

	before, err := Interpolate(samples, samples[0].TS.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, samples[0], before)

	after, err := Interpolate(samples, samples[2].TS.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, samples[2], after)
}

func TestInterpolateQuarterPoint(t *testing.T) {
	samples := hourlySeries()
	at := samples[1].TS.Add(15 * time.Minute)

	got, err := Interpolate(samples, at)
	require.NoError(t, err)
	assert.InDelta(t, 22.5, got.TemperatureC, 1e-9)
	assert.InDelta(t, 575, got.SolarIrradianceWM2, 1e-9)
	assert.Equal(t, types.ConditionClear, got.Condition)
}
