package types

// ProfileKind selects which consumption shape a site follows.
type ProfileKind string

const (
	ProfileResidential ProfileKind = "residential"
	ProfileCommercial  ProfileKind = "commercial"
)

// Site is the static configuration supplied by the platform for one power
// site. The simulation engine only reads it.
type Site struct {
	ID                  string      `json:"id" yaml:"id" db:"id"`
	Name                string      `json:"name" yaml:"name" db:"name"`
	LatitudeDeg         float64     `json:"latitudeDeg" yaml:"latitudeDeg" db:"latitude_deg"`
	LongitudeDeg        float64     `json:"longitudeDeg" yaml:"longitudeDeg" db:"longitude_deg"`
	SolarCapacityKW     float64     `json:"solarCapacityKW" yaml:"solarCapacityKW" db:"solar_capacity_kw"`
	BatteryCapacityKWH  float64     `json:"batteryCapacityKWH" yaml:"batteryCapacityKWH" db:"battery_capacity_kwh"`
	NominalVoltageV     float64     `json:"nominalVoltageV" yaml:"nominalVoltageV" db:"nominal_voltage_v"`
	DailyConsumptionKWH float64     `json:"dailyConsumptionKWH" yaml:"dailyConsumptionKWH" db:"daily_consumption_kwh"`
	GridAvailable       bool        `json:"gridAvailable" yaml:"gridAvailable" db:"grid_available"`
	Profile             ProfileKind `json:"profile" yaml:"profile" db:"profile"`
}

// SiteSolarConfig is derived once from a site's declared solar capacity and
// stays constant for a run.
type SiteSolarConfig struct {
	PanelCapacityKW       float64 `json:"panelCapacityKW"`
	InverterEfficiency    float64 `json:"inverterEfficiency"`
	TiltOrientationFactor float64 `json:"tiltOrientationFactor"`
}

// LoadProfile shapes a site's consumption. Hour sets cover 0-23; derived
// once from declared daily consumption and constant per run.
type LoadProfile struct {
	BaseLoadKW                   float64 `json:"baseLoadKW"`
	PeakLoadKW                   float64 `json:"peakLoadKW"`
	PeakHours                    []int   `json:"peakHours"`
	ShoulderHours                []int   `json:"shoulderHours"`
	OffPeakHours                 []int   `json:"offPeakHours"`
	WeekendFactor                float64 `json:"weekendFactor"`
	TemperatureSensitivityKWPerC float64 `json:"temperatureSensitivityKWPerC"`
}
