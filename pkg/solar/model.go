package solar

import (
	"math"
	"time"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

// referenceIrradianceWM2 is the irradiance at which a panel produces its
// rated output (standard test conditions).
const referenceIrradianceWM2 = 1000.0

// Model converts a weather sample plus a site's solar configuration into
// expected production.
type Model struct{}

func NewModel() *Model {
	return &Model{}
}

// ProducePowerKW returns the expected solar power for the instant, clamped
// to [0, PanelCapacityKW], and the production efficiency as a percentage of
// the theoretical maximum for the current irradiance. Efficiency is 0 when
// output is zero.
func (m *Model) ProducePowerKW(sample types.WeatherSample, cfg types.SiteSolarConfig, at time.Time) (powerKW, efficiencyPct float64) {
	if cfg.PanelCapacityKW <= 0 {
		return 0, 0
	}
	if !daylight(sample, at) {
		return 0, 0
	}

	factor := sample.SolarIrradianceWM2 / referenceIrradianceWM2
	if factor <= 0 {
		return 0, 0
	}
	if factor > 1 {
		factor = 1
	}

	powerKW = cfg.PanelCapacityKW * factor * cfg.TiltOrientationFactor * cfg.InverterEfficiency
	if powerKW < 0 {
		powerKW = 0
	}
	if powerKW > cfg.PanelCapacityKW {
		powerKW = cfg.PanelCapacityKW
	}
	if powerKW == 0 {
		return 0, 0
	}

	theoreticalKW := cfg.PanelCapacityKW * factor
	efficiencyPct = powerKW / theoreticalKW * 100
	return powerKW, efficiencyPct
}

// daylight reports whether the instant falls in the sample's daylight
// window. When the upstream omitted sunrise/sunset we fall back to a fixed
// 6:00-20:00 window.
func daylight(sample types.WeatherSample, at time.Time) bool {
	if !sample.Sunrise.IsZero() && !sample.Sunset.IsZero() {
		return !at.Before(sample.Sunrise) && at.Before(sample.Sunset)
	}
	h := at.UTC().Hour()
	return h >= 6 && h < 20
}

// CapacityFactor returns actual output relative to rated capacity, used by
// rollups. Zero capacity yields zero.
func CapacityFactor(powerKW, panelCapacityKW float64) float64 {
	if panelCapacityKW <= 0 {
		return 0
	}
	return math.Min(1, math.Max(0, powerKW/panelCapacityKW))
}
