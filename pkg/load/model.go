package load

import (
	"math/rand"
	"sync"
	"time"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

// Hour-bucket multipliers applied against the midpoint of base/peak load.
const (
	peakMultiplier     = 1.3
	shoulderMultiplier = 1.0
	offPeakMultiplier  = 0.6

	// comfortThresholdC is where cooling demand starts to add load.
	comfortThresholdC = 25.0

	// perturbationBound keeps the random jitter within ±10%.
	perturbationBound = 0.10
)

// Model computes expected load demand. The random source is injected so
// tests can fix the sequence; production callers pass a time-seeded one.
type Model struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewModel(rng *rand.Rand) *Model {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Model{rng: rng}
}

// DemandKW returns the expected site load for the instant, never negative.
func (m *Model) DemandKW(profile types.LoadProfile, sample types.WeatherSample, at time.Time) float64 {
	midpointKW := (profile.BaseLoadKW + profile.PeakLoadKW) / 2

	demand := midpointKW * m.hourMultiplier(profile, at.Hour())

	if wd := at.Weekday(); wd == time.Saturday || wd == time.Sunday {
		demand *= profile.WeekendFactor
	}

	if sample.TemperatureC > comfortThresholdC {
		demand += profile.TemperatureSensitivityKWPerC * (sample.TemperatureC - comfortThresholdC)
	}

	demand *= m.perturb()

	if demand < 0 {
		demand = 0
	}
	return demand
}

func (m *Model) hourMultiplier(profile types.LoadProfile, hour int) float64 {
	if containsHour(profile.PeakHours, hour) {
		return peakMultiplier
	}
	if containsHour(profile.OffPeakHours, hour) {
		return offPeakMultiplier
	}
	// hours not assigned to any bucket behave as shoulder
	return shoulderMultiplier
}

func (m *Model) perturb() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return 1 + (m.rng.Float64()*2-1)*perturbationBound
}

func containsHour(hours []int, hour int) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}
