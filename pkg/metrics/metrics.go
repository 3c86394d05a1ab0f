package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the engine's prometheus metrics.
type Collector struct {
	// Simulation
	ReadingsGenerated *prometheus.CounterVec
	TickErrors        *prometheus.CounterVec
	RoundDuration     prometheus.Histogram

	// Persistence
	PersistFailures *prometheus.CounterVec
	BatchFlushSize  prometheus.Histogram

	// Weather
	WeatherFetches *prometheus.CounterVec

	// Streaming
	StreamClients prometheus.Gauge
}

// NewCollector registers all metrics under the namespace with the default
// registry. Call once per process.
func NewCollector(namespace string) *Collector {
	return &Collector{
		ReadingsGenerated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "readings_generated_total",
				Help:      "Total telemetry readings generated per site",
			},
			[]string{"site"},
		),

		TickErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tick_errors_total",
				Help:      "Total per-site tick failures by stage",
			},
			[]string{"site", "stage"},
		),

		RoundDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "round_duration_seconds",
				Help:      "Duration of one full round across all sites",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
		),

		PersistFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persist_failures_total",
				Help:      "Total failed storage writes per site",
			},
			[]string{"site"},
		),

		BatchFlushSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_flush_size",
				Help:      "Readings per storage batch flush",
				Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000},
			},
		),

		WeatherFetches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "weather_fetches_total",
				Help:      "Total weather fetch attempts by result",
			},
			[]string{"result"},
		),

		StreamClients: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stream_clients",
				Help:      "Currently connected websocket clients",
			},
		),
	}
}
