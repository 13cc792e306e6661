// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Batch metrics
	BatchesTotal  *prometheus.CounterVec
	BatchDuration prometheus.Histogram
	OrdersHedged  prometheus.Counter
	OrdersInBatch prometheus.Histogram

	// Pipeline step metrics
	StepLatency *prometheus.HistogramVec
	StepErrors  *prometheus.CounterVec

	// Settlement metrics
	BroadcastOutcomes  *prometheus.CounterVec
	JournalReuses      prometheus.Counter
	TrackerOutcomes    *prometheus.CounterVec
	TrackerDisagreed   prometheus.Counter
	RPCCallLatency     *prometheus.HistogramVec
	SettlementEventErr prometheus.Counter

	// Health metrics
	LastSuccessfulBatch prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_hedge"
	}

	return &Metrics{
		// Batch metrics
		BatchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Total number of hedge batches by status",
		}, []string{"status"}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Hedge batch duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		OrdersHedged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "orders_hedged_total",
			Help:      "Total number of orders hedged in committed batches",
		}),
		OrdersInBatch: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "orders",
			Help:      "Number of pending orders picked up per batch",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),

		// Pipeline step metrics
		StepLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "step_latency_seconds",
			Help:      "Pipeline step latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"step"}),
		StepErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "step_errors_total",
			Help:      "Total number of pipeline step failures",
		}, []string{"step"}),

		// Settlement metrics
		BroadcastOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "broadcast_outcomes_total",
			Help:      "Broadcast results by outcome",
		}, []string{"outcome"}),
		JournalReuses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "journal_reuses_total",
			Help:      "Signatures reused from the broadcast journal instead of re-broadcasting",
		}),
		TrackerOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "outcomes_total",
			Help:      "Notification tracker results by outcome",
		}, []string{"outcome"}),
		TrackerDisagreed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "disagreements_total",
			Help:      "Notifications that contradict a finalized broadcast",
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		SettlementEventErr: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "settlement_event_errors_total",
			Help:      "Settlement events that could not be recorded",
		}),

		// Health metrics
		LastSuccessfulBatch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_batch_timestamp",
			Help:      "Unix timestamp of last committed batch",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordBatch records a finished batch. status is "committed", "rolled_back" or "empty".
func RecordBatch(status string, orders int, durationSeconds float64) {
	DefaultMetrics.BatchesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.BatchDuration.Observe(durationSeconds)
	DefaultMetrics.OrdersInBatch.Observe(float64(orders))
	if status == "committed" {
		DefaultMetrics.OrdersHedged.Add(float64(orders))
	}
}

// RecordStep records the latency of one pipeline step and whether it failed.
func RecordStep(step string, seconds float64, err error) {
	DefaultMetrics.StepLatency.WithLabelValues(step).Observe(seconds)
	if err != nil {
		DefaultMetrics.StepErrors.WithLabelValues(step).Inc()
	}
}

// RecordBroadcast counts a broadcast outcome.
func RecordBroadcast(outcome string) {
	DefaultMetrics.BroadcastOutcomes.WithLabelValues(outcome).Inc()
}

// RecordJournalReuse counts a signature reused from the journal.
func RecordJournalReuse() {
	DefaultMetrics.JournalReuses.Inc()
}

// RecordTrackerOutcome counts a tracker result and flags disagreement with the broadcast.
func RecordTrackerOutcome(outcome string, disagrees bool) {
	DefaultMetrics.TrackerOutcomes.WithLabelValues(outcome).Inc()
	if disagrees {
		DefaultMetrics.TrackerDisagreed.Inc()
	}
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordSettlementEventError counts a failed settlement event write.
func RecordSettlementEventError() {
	DefaultMetrics.SettlementEventErr.Inc()
}

// MarkBatchSuccess updates the last successful batch timestamp.
func MarkBatchSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulBatch.Set(float64(unixSeconds))
}
