package types

import "time"

// Condition is a coarse weather classification derived from cloud cover,
// precipitation, and wind.
type Condition string

const (
	ConditionClear        Condition = "clear"
	ConditionPartlyCloudy Condition = "partly_cloudy"
	ConditionCloudy       Condition = "cloudy"
	ConditionRainy        Condition = "rainy"
	ConditionStormy       Condition = "stormy"
)

// WeatherSample is one hourly ambient observation for a location.
// Samples are immutable; sequences per location are ordered by TS.
type WeatherSample struct {
	TS                 time.Time `json:"ts"`
	TemperatureC       float64   `json:"temperatureC"`
	HumidityPct        float64   `json:"humidityPct"`
	CloudCoverPct      float64   `json:"cloudCoverPct"`
	SolarIrradianceWM2 float64   `json:"solarIrradianceWM2"`
	WindSpeedMS        float64   `json:"windSpeedMS"`
	PrecipitationMM    float64   `json:"precipitationMM"`
	UVIndex            float64   `json:"uvIndex"`
	Sunrise            time.Time `json:"sunrise"`
	Sunset             time.Time `json:"sunset"`
	Condition          Condition `json:"condition"`
}

// BatteryState is the physical state of one site's battery. It is owned by
// exactly one simulator instance and mutated once per tick.
type BatteryState struct {
	SOCFraction  float64 `json:"socFraction"`
	VoltageV     float64 `json:"voltageV"`
	CurrentA     float64 `json:"currentA"`
	TemperatureC float64 `json:"temperatureC"`
	HealthPct    float64 `json:"healthPct"`
}

// TelemetryReading is the flat per-tick record and the only artifact that
// crosses the persistence boundary. Created once per tick, immutable after.
type TelemetryReading struct {
	SiteID              string    `json:"siteID" db:"site_id"`
	TS                  time.Time `json:"ts" db:"ts"`
	BatterySOC          float64   `json:"batterySOC" db:"battery_soc"`
	BatteryVoltageV     float64   `json:"batteryVoltageV" db:"battery_voltage_v"`
	BatteryCurrentA     float64   `json:"batteryCurrentA" db:"battery_current_a"`
	BatteryTemperatureC float64   `json:"batteryTemperatureC" db:"battery_temperature_c"`
	BatteryHealthPct    float64   `json:"batteryHealthPct" db:"battery_health_pct"`
	BatteryNetKW        float64   `json:"batteryNetKW" db:"battery_net_kw"`
	SolarKW             float64   `json:"solarKW" db:"solar_kw"`
	SolarEfficiencyPct  float64   `json:"solarEfficiencyPct" db:"solar_efficiency_pct"`
	LoadKW              float64   `json:"loadKW" db:"load_kw"`
	UnmetLoadKW         float64   `json:"unmetLoadKW" db:"unmet_load_kw"`
	GridImportKW        float64   `json:"gridImportKW" db:"grid_import_kw"`
	GridExportKW        float64   `json:"gridExportKW" db:"grid_export_kw"`
	AmbientTemperatureC float64   `json:"ambientTemperatureC" db:"ambient_temperature_c"`
	Condition           Condition `json:"condition" db:"condition"`
}

// AggregatePeriod is the granularity of a rollup record.
type AggregatePeriod string

const (
	AggregateHourly AggregatePeriod = "hourly"
	AggregateDaily  AggregatePeriod = "daily"
)

// AggregateReading is a derived rollup over many readings for one site.
type AggregateReading struct {
	SiteID        string          `json:"siteID" db:"site_id"`
	Period        AggregatePeriod `json:"period" db:"period"`
	TSStart       time.Time       `json:"tsStart" db:"ts_start"`
	SampleCount   int             `json:"sampleCount" db:"sample_count"`
	AvgBatterySOC float64         `json:"avgBatterySOC" db:"avg_battery_soc"`
	MinBatterySOC float64         `json:"minBatterySOC" db:"min_battery_soc"`
	MaxBatterySOC float64         `json:"maxBatterySOC" db:"max_battery_soc"`
	AvgLoadKW     float64         `json:"avgLoadKW" db:"avg_load_kw"`
	PeakLoadKW    float64         `json:"peakLoadKW" db:"peak_load_kw"`
	SolarKWH      float64         `json:"solarKWH" db:"solar_kwh"`
	LoadKWH       float64         `json:"loadKWH" db:"load_kwh"`
	GridImportKWH float64         `json:"gridImportKWH" db:"grid_import_kwh"`
	GridExportKWH float64         `json:"gridExportKWH" db:"grid_export_kwh"`
}
