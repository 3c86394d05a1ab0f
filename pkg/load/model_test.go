package load

import (
	"math/rand"
	"testing"
	"time"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"

	"github.com/stretchr/testify/assert"
)

func testProfile() types.LoadProfile {
	return types.LoadProfile{
		BaseLoadKW:                   1.0,
		PeakLoadKW:                   3.0,
		PeakHours:                    []int{17, 18, 19, 20, 21},
		OffPeakHours:                 []int{0, 1, 2, 3, 4, 5},
		WeekendFactor:                1.2,
		TemperatureSensitivityKWPerC: 0.05,
	}
}

func fixedModel() *Model {
	return NewModel(rand.New(rand.NewSource(42)))
}

// weekday helpers: 2026-06-15 is a Monday
func weekdayAt(hour int) time.Time {
	return time.Date(2026, 6, 15, hour, 0, 0, 0, time.UTC)
}

func TestDemandPeakExceedsOffPeak(t *testing.T) {
	m := fixedModel()
	profile := testProfile()
	sample := types.WeatherSample{TemperatureC: 20}

	var peakSum, offSum float64
	for i := 0; i < 50; i++ {
		peakSum += m.DemandKW(profile, sample, weekdayAt(18))
		offSum += m.DemandKW(profile, sample, weekdayAt(2))
	}
	// multipliers dominate the ±10% noise over enough draws
	assert.Greater(t, peakSum, offSum*1.5)
}

func TestDemandWeekendFactor(t *testing.T) {
	profile := testProfile()
	sample := types.WeatherSample{TemperatureC: 20}
	saturday := time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)

	var weekdaySum, weekendSum float64
	m := fixedModel()
	for i := 0; i < 50; i++ {
		weekdaySum += m.DemandKW(profile, sample, weekdayAt(12))
		weekendSum += m.DemandKW(profile, sample, saturday)
	}
	assert.Greater(t, weekendSum, weekdaySum)
}

func TestDemandTemperatureSensitivity(t *testing.T) {
	profile := testProfile()
	mild := types.WeatherSample{TemperatureC: 22}
	hot := types.WeatherSample{TemperatureC: 35}

	var mildSum, hotSum float64
	m := fixedModel()
	for i := 0; i < 50; i++ {
		mildSum += m.DemandKW(profile, mild, weekdayAt(12))
		hotSum += m.DemandKW(profile, hot, weekdayAt(12))
	}
	assert.Greater(t, hotSum, mildSum)
}

func TestDemandWithinPerturbationBounds(t *testing.T) {
	m := fixedModel()
	profile := testProfile()
	sample := types.WeatherSample{TemperatureC: 20}

	// shoulder hour, weekday: expected midpoint is (1+3)/2 = 2
	for i := 0; i < 200; i++ {
		got := m.DemandKW(profile, sample, weekdayAt(12))
		assert.GreaterOrEqual(t, got, 2*0.9-1e-9)
		assert.LessOrEqual(t, got, 2*1.1+1e-9)
	}
}

func TestDemandNeverNegative(t *testing.T) {
	m := fixedModel()
	profile := types.LoadProfile{BaseLoadKW: 0, PeakLoadKW: 0, WeekendFactor: 1}
	sample := types.WeatherSample{TemperatureC: 10}

	for i := 0; i < 50; i++ {
		assert.GreaterOrEqual(t, m.DemandKW(profile, sample, weekdayAt(12)), 0.0)
	}
}
