package solar

import (
	"testing"
	"time"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"

	"github.com/stretchr/testify/assert"
)

func testConfig() types.SiteSolarConfig {
	return types.SiteSolarConfig{
		PanelCapacityKW:       10,
		InverterEfficiency:    0.96,
		TiltOrientationFactor: 0.9,
	}
}

func TestProduceAtNoon(t *testing.T) {
	m := NewModel()
	noon := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	sample := types.WeatherSample{
		TS:                 noon,
		SolarIrradianceWM2: 800,
		Sunrise:            time.Date(2026, 6, 15, 5, 0, 0, 0, time.UTC),
		Sunset:             time.Date(2026, 6, 15, 21, 0, 0, 0, time.UTC),
	}

	power, eff := m.ProducePowerKW(sample, testConfig(), noon)
	assert.InDelta(t, 10*0.8*0.9*0.96, power, 1e-9)
	assert.InDelta(t, 0.9*0.96*100, eff, 1e-9)
}

func TestProduceZeroAtNight(t *testing.T) {
	m := NewModel()
	midnight := time.Date(2026, 6, 15, 0, 30, 0, 0, time.UTC)
	sample := types.WeatherSample{
		TS: midnight,
		// a nonzero value here must still yield zero outside daylight
		SolarIrradianceWM2: 50,
		Sunrise:            time.Date(2026, 6, 15, 5, 0, 0, 0, time.UTC),
		Sunset:             time.Date(2026, 6, 15, 21, 0, 0, 0, time.UTC),
	}

	power, eff := m.ProducePowerKW(sample, testConfig(), midnight)
	assert.Zero(t, power)
	assert.Zero(t, eff)
}

func TestProduceFallbackWindow(t *testing.T) {
	m := NewModel()
	sample := types.WeatherSample{SolarIrradianceWM2: 600}

	power, _ := m.ProducePowerKW(sample, testConfig(), time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))
	assert.Greater(t, power, 0.0)

	power, _ = m.ProducePowerKW(sample, testConfig(), time.Date(2026, 6, 15, 3, 0, 0, 0, time.UTC))
	assert.Zero(t, power)
}

func TestProduceClampsIrradiance(t *testing.T) {
	m := NewModel()
	noon := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	sample := types.WeatherSample{
		TS:                 noon,
		SolarIrradianceWM2: 1400,
		Sunrise:            time.Date(2026, 6, 15, 5, 0, 0, 0, time.UTC),
		Sunset:             time.Date(2026, 6, 15, 21, 0, 0, 0, time.UTC),
	}
	cfg := testConfig()

	power, _ := m.ProducePowerKW(sample, cfg, noon)
	assert.LessOrEqual(t, power, cfg.PanelCapacityKW)
	assert.InDelta(t, 10*0.9*0.96, power, 1e-9)
}

func TestProduceZeroCapacity(t *testing.T) {
	m := NewModel()
	noon := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	sample := types.WeatherSample{TS: noon, SolarIrradianceWM2: 900}

	power, eff := m.ProducePowerKW(sample, types.SiteSolarConfig{}, noon)
	assert.Zero(t, power)
	assert.Zero(t, eff)
}

func TestCapacityFactor(t *testing.T) {
	assert.Zero(t, CapacityFactor(5, 0))
	assert.InDelta(t, 0.5, CapacityFactor(5, 10), 1e-9)
	assert.Equal(t, 1.0, CapacityFactor(15, 10))
}
