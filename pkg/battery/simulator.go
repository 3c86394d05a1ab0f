package battery

import (
	"errors"
	"fmt"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

// ErrInvalidConfig is returned when a simulator is constructed with a
// configuration that cannot produce a physical simulation.
var ErrInvalidConfig = errors.New("invalid battery configuration")

const (
	// reserveFloorSOC is the fraction below which the battery refuses to
	// discharge further.
	reserveFloorSOC = 0.12

	// DefaultInitialSOC seeds a battery that has no persisted history.
	DefaultInitialSOC = 0.85

	healthFloorPct   = 80.0
	healthDecayPerHr = 0.0008
	minTemperatureC  = -20.0
	maxTemperatureC  = 60.0
	ambientDriftRate = 0.2
	selfHeatCPerAmp  = 0.004
	roundTripEff     = 0.92
)

// Mode labels what the battery did during a tick.
type Mode string

const (
	ModeCharging     Mode = "charging"
	ModeDischarging  Mode = "discharging"
	ModeGridAssisted Mode = "grid-assisted"
	ModeIdle         Mode = "idle"
)

// Config is the fixed physical description of one site's battery.
type Config struct {
	CapacityKWH     float64
	NominalVoltageV float64
	MaxChargeKW     float64
	MaxDischargeKW  float64
	TickMinutes     float64
}

// Result is the outcome of one simulation tick. Power flows are all
// non-negative; NetKW is positive when charging, negative when discharging.
type Result struct {
	State        types.BatteryState
	NetKW        float64
	GridImportKW float64
	GridExportKW float64
	UnmetLoadKW  float64
	Mode         Mode
}

// Simulator owns the battery state for one site. It is not safe for
// concurrent use; each site gets its own instance driven by a single
// goroutine.
type Simulator struct {
	cfg   Config
	state types.BatteryState
}

// NewSimulator validates the configuration, sanitizes the initial state,
// and returns a simulator ready to tick. A zero-value initial state gets
// the default SOC and a voltage matching it.
func NewSimulator(cfg Config, initial types.BatteryState) (*Simulator, error) {
	if cfg.CapacityKWH <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %v", ErrInvalidConfig, cfg.CapacityKWH)
	}
	if cfg.NominalVoltageV <= 0 {
		return nil, fmt.Errorf("%w: nominal voltage must be positive, got %v", ErrInvalidConfig, cfg.NominalVoltageV)
	}
	if cfg.TickMinutes <= 0 {
		return nil, fmt.Errorf("%w: tick duration must be positive, got %v", ErrInvalidConfig, cfg.TickMinutes)
	}
	// a battery can typically move half its capacity in an hour
	if cfg.MaxChargeKW <= 0 {
		cfg.MaxChargeKW = cfg.CapacityKWH / 2
	}
	if cfg.MaxDischargeKW <= 0 {
		cfg.MaxDischargeKW = cfg.CapacityKWH / 2
	}

	s := &Simulator{cfg: cfg, state: sanitize(cfg, initial)}
	return s, nil
}

func sanitize(cfg Config, st types.BatteryState) types.BatteryState {
	if st.SOCFraction <= 0 && st.VoltageV == 0 && st.HealthPct == 0 {
		st.SOCFraction = DefaultInitialSOC
	}
	st.SOCFraction = clamp(st.SOCFraction, 0, 1)
	if st.HealthPct == 0 {
		st.HealthPct = 100
	}
	st.HealthPct = clamp(st.HealthPct, healthFloorPct, 100)
	if st.VoltageV <= 0 {
		st.VoltageV = voltageForSOC(cfg.NominalVoltageV, st.SOCFraction)
	}
	st.TemperatureC = clamp(st.TemperatureC, minTemperatureC, maxTemperatureC)
	return st
}

// State returns a copy of the current battery state.
func (s *Simulator) State() types.BatteryState {
	return s.state
}

// Simulate advances the battery one tick given the solar production and
// load demand over the interval. Surplus solar charges the battery and
// then exports; deficits discharge to the reserve floor and then import.
// Off-grid sites report unmet load instead of importing.
func (s *Simulator) Simulate(solarKW, loadKW, ambientC float64, gridAvailable bool) Result {
	if solarKW < 0 {
		solarKW = 0
	}
	if loadKW < 0 {
		loadKW = 0
	}

	hours := s.cfg.TickMinutes / 60
	usableKWH := s.cfg.CapacityKWH * s.state.HealthPct / 100

	res := Result{Mode: ModeIdle}
	net := solarKW - loadKW

	switch {
	case net > 0:
		// surplus: charge first, export the remainder
		chargeKW := min2(net, s.cfg.MaxChargeKW)
		headroomKWH := (1 - s.state.SOCFraction) * usableKWH
		maxAcceptKW := headroomKWH / hours / roundTripEff
		chargeKW = min2(chargeKW, maxAcceptKW)
		if chargeKW < 0 {
			chargeKW = 0
		}

		s.state.SOCFraction += chargeKW * roundTripEff * hours / usableKWH
		res.NetKW = chargeKW
		surplus := net - chargeKW
		if surplus > 1e-9 {
			if gridAvailable {
				res.GridExportKW = surplus
			}
			// off-grid surplus beyond a full battery is curtailed
		}
		if chargeKW > 1e-9 {
			res.Mode = ModeCharging
		}

	case net < 0:
		// deficit: discharge down to the reserve, then lean on the grid
		deficitKW := -net
		dischargeKW := min2(deficitKW, s.cfg.MaxDischargeKW)
		availKWH := (s.state.SOCFraction - reserveFloorSOC) * usableKWH
		if availKWH < 0 {
			availKWH = 0
		}
		maxSupplyKW := availKWH / hours
		dischargeKW = min2(dischargeKW, maxSupplyKW)

		s.state.SOCFraction -= dischargeKW * hours / usableKWH
		res.NetKW = -dischargeKW

		// the battery can't cover the whole deficit once the reserve floor
		// is hit, so any shortfall means grid-assisted regardless of whether
		// an import is actually possible
		shortfallKW := deficitKW - dischargeKW
		if shortfallKW > 1e-9 {
			res.Mode = ModeGridAssisted
			if gridAvailable {
				res.GridImportKW = shortfallKW
			} else {
				res.UnmetLoadKW = shortfallKW
			}
		} else if dischargeKW > 1e-9 {
			res.Mode = ModeDischarging
		}
	}

	s.state.SOCFraction = clamp(s.state.SOCFraction, 0, 1)
	s.state.VoltageV = voltageForSOC(s.cfg.NominalVoltageV, s.state.SOCFraction)

	// I = P/V, positive when discharging
	if s.state.VoltageV > 0 {
		s.state.CurrentA = -res.NetKW * 1000 / s.state.VoltageV
	}

	s.advanceThermal(ambientC, hours)
	s.advanceHealth(hours)

	res.State = s.state
	return res
}

// advanceThermal drifts the pack toward ambient and adds resistive heating
// proportional to current.
func (s *Simulator) advanceThermal(ambientC, hours float64) {
	drift := (ambientC - s.state.TemperatureC) * ambientDriftRate * hours
	heat := abs(s.state.CurrentA) * selfHeatCPerAmp * hours
	s.state.TemperatureC = clamp(s.state.TemperatureC+drift+heat, minTemperatureC, maxTemperatureC)
}

// advanceHealth applies calendar degradation. Health never increases and
// never drops below the floor.
func (s *Simulator) advanceHealth(hours float64) {
	s.state.HealthPct = clamp(s.state.HealthPct-healthDecayPerHr*hours, healthFloorPct, s.state.HealthPct)
}

// voltageForSOC maps SOC to terminal voltage with a piecewise linear curve
// around nominal. Strictly increasing in SOC.
func voltageForSOC(nominalV, soc float64) float64 {
	switch {
	case soc < 0.1:
		// steep knee near empty
		return nominalV * (0.85 + soc)
	case soc < 0.9:
		// flat plateau through the working range
		return nominalV * (0.95 + soc*0.0625)
	default:
		// rise toward full charge
		return nominalV * (0.55625 + soc*0.5)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
