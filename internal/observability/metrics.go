package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for RoundLedger.
type Metrics struct {
	// --- Engine ---
	EngineOpsApplied  *prometheus.CounterVec
	EngineOpsRejected *prometheus.CounterVec
	EngineOpDuration  *prometheus.HistogramVec
	EngineSequence    prometheus.Gauge

	// --- Domain ---
	BetsPlaced    prometheus.Counter
	BetsSettled   *prometheus.CounterVec
	RoundsSettled *prometheus.CounterVec
	ClaimsPaid    *prometheus.CounterVec
	FeesCollected prometheus.Counter

	// --- Oracle ---
	OracleReads *prometheus.CounterVec

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Ingestion ---
	CommandsReceived  *prometheus.CounterVec
	CommandErrors     *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
	NATSPullLatency   *prometheus.HistogramVec

	// --- Persistence ---
	PersistOutputsWritten  prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Engine
		EngineOpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "round_engine_ops_applied_total",
			Help: "Operations successfully applied by the engine",
		}, []string{"op"}),

		EngineOpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "round_engine_ops_rejected_total",
			Help: "Operations rejected (authorization, lifecycle, validation)",
		}, []string{"op"}),

		EngineOpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "round_engine_op_duration_seconds",
			Help:    "Time to apply a single operation",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "round_engine_sequence",
			Help: "Operation log sequence of the last applied operation",
		}),

		// Domain
		BetsPlaced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "round_bets_placed_total",
			Help: "Bets accepted",
		}),

		BetsSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "round_bets_settled_total",
			Help: "Bets classified at settlement",
		}, []string{"status"}),

		RoundsSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "round_rounds_settled_total",
			Help: "Rounds fully settled",
		}, []string{"market_type"}),

		ClaimsPaid: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "round_claims_paid_total",
			Help: "Claims paid out",
		}, []string{"status"}),

		FeesCollected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "round_fees_collected_total",
			Help: "Fee amount transferred to the treasury (base units)",
		}),

		// Oracle
		OracleReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "round_oracle_reads_total",
			Help: "Oracle price reads by result (ok/stale/invalid/error)",
		}, []string{"result"}),

		// Channel & Backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "round_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "round_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "round_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "round_publish_drops_total",
			Help: "Outputs dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "round_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		// Ingestion
		CommandsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "round_commands_received_total",
			Help: "Commands received from NATS",
		}, []string{"command"}),

		CommandErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "round_command_errors_total",
			Help: "Commands that failed to parse or apply",
		}, []string{"command", "reason"}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "round_events_published_total",
			Help: "Settlement events published to NATS",
		}, []string{"op"}),

		NATSPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "round_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: []float64{0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01},
		}, []string{"subject"}),

		// Persistence
		PersistOutputsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "round_persist_outputs_written_total",
			Help: "Operation outputs written to Postgres",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "round_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "round_persist_batch_size",
			Help:    "Outputs per write batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "round_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "round_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "round_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "round_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Query API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "round_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "round_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "round_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
