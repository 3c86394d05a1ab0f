package orchestrator

import (
	"time"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

// BuildAggregates rolls ordered readings for one site into per-period
// records. tickHours converts instantaneous power into energy for the
// interval each reading covers.
func BuildAggregates(readings []types.TelemetryReading, period types.AggregatePeriod, tickHours float64) []types.AggregateReading {
	if len(readings) == 0 {
		return nil
	}

	truncate := func(ts time.Time) time.Time {
		switch period {
		case types.AggregateDaily:
			return ts.UTC().Truncate(24 * time.Hour)
		default:
			return ts.UTC().Truncate(time.Hour)
		}
	}

	var out []types.AggregateReading
	var cur *types.AggregateReading
	var socSum, loadSum float64

	flush := func() {
		if cur == nil {
			return
		}
		cur.AvgBatterySOC = socSum / float64(cur.SampleCount)
		cur.AvgLoadKW = loadSum / float64(cur.SampleCount)
		out = append(out, *cur)
		cur = nil
	}

	for _, r := range readings {
		start := truncate(r.TS)
		if cur == nil || !cur.TSStart.Equal(start) {
			flush()
			cur = &types.AggregateReading{
				SiteID:        r.SiteID,
				Period:        period,
				TSStart:       start,
				MinBatterySOC: r.BatterySOC,
				MaxBatterySOC: r.BatterySOC,
			}
			socSum, loadSum = 0, 0
		}

		cur.SampleCount++
		socSum += r.BatterySOC
		loadSum += r.LoadKW
		if r.BatterySOC < cur.MinBatterySOC {
			cur.MinBatterySOC = r.BatterySOC
		}
		if r.BatterySOC > cur.MaxBatterySOC {
			cur.MaxBatterySOC = r.BatterySOC
		}
		if r.LoadKW > cur.PeakLoadKW {
			cur.PeakLoadKW = r.LoadKW
		}
		cur.SolarKWH += r.SolarKW * tickHours
		cur.LoadKWH += r.LoadKW * tickHours
		cur.GridImportKWH += r.GridImportKW * tickHours
		cur.GridExportKWH += r.GridExportKW * tickHours
	}
	flush()
	return out
}
