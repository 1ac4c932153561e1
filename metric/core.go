package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all client-level metrics (not application-specific)
type Metrics struct {
	// Resource metrics
	ProducersActive prometheus.Gauge
	ConsumersActive prometheus.Gauge
	CreateTotal     *prometheus.CounterVec
	CreateDuration  *prometheus.HistogramVec

	// Connection metrics
	ConnectionsOpen prometheus.Gauge
	ConnectAttempts *prometheus.CounterVec
	LookupRequests  prometheus.Counter

	// Delivery metrics
	EntriesDecoded  prometheus.Counter
	MessagesSent    prometheus.Counter
	SendFailures    prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all client metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ProducersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "pulsekit",
				Subsystem: "resources",
				Name:      "producers_active",
				Help:      "Number of live producer registrations (one per partition)",
			},
		),

		ConsumersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "pulsekit",
				Subsystem: "resources",
				Name:      "consumers_active",
				Help:      "Number of live consumer and reader registrations",
			},
		),

		CreateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pulsekit",
				Subsystem: "resources",
				Name:      "create_total",
				Help:      "Resource creation attempts by kind and outcome",
			},
			[]string{"kind", "result"},
		),

		CreateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pulsekit",
				Subsystem: "resources",
				Name:      "create_duration_seconds",
				Help:      "Resource creation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		ConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "pulsekit",
				Subsystem: "broker",
				Name:      "connections_open",
				Help:      "Number of pooled broker connections",
			},
		),

		ConnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pulsekit",
				Subsystem: "broker",
				Name:      "connect_attempts_total",
				Help:      "Broker connection attempts by outcome",
			},
			[]string{"result"},
		),

		LookupRequests: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pulsekit",
				Subsystem: "broker",
				Name:      "lookup_requests_total",
				Help:      "Partition metadata lookup requests",
			},
		),

		EntriesDecoded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pulsekit",
				Subsystem: "delivery",
				Name:      "entries_decoded_total",
				Help:      "Logical messages reconstructed from broker batches",
			},
		),

		MessagesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pulsekit",
				Subsystem: "delivery",
				Name:      "messages_sent_total",
				Help:      "Messages acknowledged by the broker",
			},
		),

		SendFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pulsekit",
				Subsystem: "delivery",
				Name:      "send_failures_total",
				Help:      "Messages that failed to publish",
			},
		),
	}
}

// collectors returns every metric for bulk registration
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ProducersActive,
		m.ConsumersActive,
		m.CreateTotal,
		m.CreateDuration,
		m.ConnectionsOpen,
		m.ConnectAttempts,
		m.LookupRequests,
		m.EntriesDecoded,
		m.MessagesSent,
		m.SendFailures,
	}
}
