package sites

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/types"
)

type fileFormat struct {
	Sites []types.Site `yaml:"sites"`
}

// LoadFile reads site definitions from a YAML file and validates each one.
func LoadFile(path string) ([]types.Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites file %s: %w", path, err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse sites file %s: %w", path, err)
	}
	if len(f.Sites) == 0 {
		return nil, fmt.Errorf("sites file %s defines no sites", path)
	}

	seen := make(map[string]bool, len(f.Sites))
	for i, s := range f.Sites {
		if err := Validate(s); err != nil {
			return nil, fmt.Errorf("site %d (%s): %w", i, s.ID, err)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate site id %s", s.ID)
		}
		seen[s.ID] = true
	}
	return f.Sites, nil
}

// Validate checks that a site definition can drive a simulation.
func Validate(s types.Site) error {
	if s.ID == "" {
		return fmt.Errorf("missing id")
	}
	if s.LatitudeDeg < -90 || s.LatitudeDeg > 90 {
		return fmt.Errorf("latitude %v out of range", s.LatitudeDeg)
	}
	if s.LongitudeDeg < -180 || s.LongitudeDeg > 180 {
		return fmt.Errorf("longitude %v out of range", s.LongitudeDeg)
	}
	if s.SolarCapacityKW < 0 {
		return fmt.Errorf("solar capacity must not be negative")
	}
	if s.BatteryCapacityKWH <= 0 {
		return fmt.Errorf("battery capacity must be positive")
	}
	if s.NominalVoltageV <= 0 {
		return fmt.Errorf("nominal voltage must be positive")
	}
	if s.DailyConsumptionKWH <= 0 {
		return fmt.Errorf("daily consumption must be positive")
	}
	switch s.Profile {
	case types.ProfileResidential, types.ProfileCommercial:
	default:
		return fmt.Errorf("unknown profile %q", s.Profile)
	}
	return nil
}

// SolarConfigFor derives the fixed solar parameters from a site's declared
// capacity.
func SolarConfigFor(s types.Site) types.SiteSolarConfig {
	return types.SiteSolarConfig{
		PanelCapacityKW:       s.SolarCapacityKW,
		InverterEfficiency:    0.96,
		TiltOrientationFactor: 0.9,
	}
}

// LoadProfileFor derives the consumption shape from a site's declared daily
// consumption and profile kind.
func LoadProfileFor(s types.Site) types.LoadProfile {
	// average power that reproduces the declared daily energy
	avgKW := s.DailyConsumptionKWH / 24

	p := types.LoadProfile{
		BaseLoadKW:                   avgKW * 0.6,
		PeakLoadKW:                   avgKW * 1.6,
		TemperatureSensitivityKWPerC: avgKW * 0.02,
	}

	switch s.Profile {
	case types.ProfileCommercial:
		p.PeakHours = []int{9, 10, 11, 12, 13, 14, 15, 16, 17}
		p.ShoulderHours = []int{7, 8, 18, 19, 20}
		p.OffPeakHours = []int{0, 1, 2, 3, 4, 5, 6, 21, 22, 23}
		// commercial sites mostly idle on weekends
		p.WeekendFactor = 0.6
	default:
		p.PeakHours = []int{17, 18, 19, 20, 21}
		p.ShoulderHours = []int{6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 22}
		p.OffPeakHours = []int{0, 1, 2, 3, 4, 5, 23}
		p.WeekendFactor = 1.15
	}
	return p
}
