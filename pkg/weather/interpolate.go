package weather

import (
	"fmt"
	"time"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

// Interpolate returns a sample for an arbitrary instant inside (or outside)
// an ordered hourly series. Instants before the first or after the last
// sample clamp to that sample. Numeric fields interpolate linearly between
// the bracketing samples; condition, sunrise, sunset, and precipitation are
// carried from the "before" sample unmodified.
func Interpolate(samples []types.WeatherSample, instant time.Time) (types.WeatherSample, error) {
	if len(samples) == 0 {
		return types.WeatherSample{}, fmt.Errorf("cannot interpolate empty sample series")
	}

	if !instant.After(samples[0].TS) {
		return samples[0], nil
	}
	last := samples[len(samples)-1]
	if !instant.Before(last.TS) {
		return last, nil
	}

	// find the bracketing pair: before is the last sample at or before instant
	lo, hi := 0, len(samples)-1
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if samples[mid].TS.After(instant) {
			hi = mid
		} else {
			lo = mid
		}
	}
	before, after := samples[lo], samples[hi]

	if before.TS.Equal(instant) {
		return before, nil
	}

	span := after.TS.Sub(before.TS).Seconds()
	if span <= 0 {
		return before, nil
	}
	frac := instant.Sub(before.TS).Seconds() / span

	lerp := func(a, b float64) float64 {
		return a + (b-a)*frac
	}

	out := types.WeatherSample{
		TS:                 instant,
		TemperatureC:       lerp(before.TemperatureC, after.TemperatureC),
		HumidityPct:        lerp(before.HumidityPct, after.HumidityPct),
		CloudCoverPct:      lerp(before.CloudCoverPct, after.CloudCoverPct),
		SolarIrradianceWM2: lerp(before.SolarIrradianceWM2, after.SolarIrradianceWM2),
		WindSpeedMS:        lerp(before.WindSpeedMS, after.WindSpeedMS),
		UVIndex:            lerp(before.UVIndex, after.UVIndex),
		// not interpolated: carried from the before sample
		PrecipitationMM: before.PrecipitationMM,
		Sunrise:         before.Sunrise,
		Sunset:          before.Sunset,
		Condition:       before.Condition,
	}
	return out, nil
}
