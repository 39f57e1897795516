package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metrics for the RSI engine.
// Each instance owns its registry so several engines (or tests) can coexist
// in one process.
type Metrics struct {
	Registry *prometheus.Registry

	// Inbound
	MessagesConsumed prometheus.Counter
	ParseErrors      prometheus.Counter
	ConsumeErrors    prometheus.Counter
	Acks             *prometheus.CounterVec // labels: outcome=ok|error

	// History
	TrackedTokens    prometheus.Gauge
	HistoryEvictions prometheus.Counter

	// Indicator
	IndicatorsComputed  prometheus.Counter
	IndicatorComputeDur prometheus.Histogram

	// Outbound
	Emissions         *prometheus.CounterVec // labels: outcome
	EmissionsInFlight prometheus.Gauge
	PublishDur        prometheus.Histogram

	// Publisher circuit breaker
	CircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	CircuitBreakerTrips prometheus.Counter

	// Emission journal
	JournalDropped prometheus.Counter

	// Live WebSocket feed
	LiveFeedClients prometheus.Gauge
}

// NewMetrics creates and registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiengine_messages_consumed_total",
			Help: "Inbound trade messages taken off the stream",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiengine_parse_errors_total",
			Help: "Inbound messages without a usable token or price",
		}),
		ConsumeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiengine_consume_errors_total",
			Help: "Transient errors reading the inbound stream",
		}),
		Acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsiengine_acks_total",
			Help: "Inbound entries acknowledged, by outcome",
		}, []string{"outcome"}),

		TrackedTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsiengine_tracked_tokens",
			Help: "Distinct tokens holding a price window (never shrinks)",
		}),
		HistoryEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiengine_history_evictions_total",
			Help: "Samples dropped from full per-token windows",
		}),

		IndicatorsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiengine_indicators_total",
			Help: "RSI values computed",
		}),
		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsiengine_indicator_compute_duration_seconds",
			Help:    "History update plus RSI compute latency per message",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),

		Emissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsiengine_emissions_total",
			Help: "RSI emissions by outcome (delivered, failed, rejected, serialize_error)",
		}, []string{"outcome"}),
		EmissionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsiengine_emissions_in_flight",
			Help: "Detached publish tasks not yet finished",
		}),
		PublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsiengine_publish_duration_seconds",
			Help:    "Outbound publish latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsiengine_publisher_circuit_breaker_state",
			Help: "Publisher circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		CircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiengine_publisher_circuit_breaker_trips_total",
			Help: "Times the publisher circuit breaker tripped open",
		}),

		JournalDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiengine_journal_dropped_total",
			Help: "Emission records dropped because the journal queue was full",
		}),

		LiveFeedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsiengine_livefeed_clients",
			Help: "Connected WebSocket clients on the live RSI feed",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesConsumed,
		m.ParseErrors,
		m.ConsumeErrors,
		m.Acks,
		m.TrackedTokens,
		m.HistoryEvictions,
		m.IndicatorsComputed,
		m.IndicatorComputeDur,
		m.Emissions,
		m.EmissionsInFlight,
		m.PublishDur,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.JournalDropped,
		m.LiveFeedClients,
	)

	return m
}
