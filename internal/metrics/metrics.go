// Package metrics exposes Prometheus counters and gauges for queue
// depths, backend write outcomes, retries, dead-letters, peer health,
// and reconciler runs, scraped at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the daemon registers. Construct once
// with New and thread through ingress/workers; all methods are
// goroutine-safe (backed by prometheus's own atomics).
type Metrics struct {
	QueueDepth       *prometheus.GaugeVec
	BackendWrites    *prometheus.CounterVec
	BackendDeletes   *prometheus.CounterVec
	RetryAttempts    *prometheus.CounterVec
	DeadLetters      prometheus.Counter
	PeerHealthy      *prometheus.GaugeVec
	ReconcilerRuns   prometheus.Counter
	ReconcilerOrphan prometheus.Counter
	ReconcilerHealed *prometheus.CounterVec
}

// New registers every collector against reg. Pass prometheus.NewRegistry()
// in tests to avoid collisions with the global default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "zonecourier",
			Name:      "queue_depth",
			Help:      "Current number of items in a persistent queue.",
		}, []string{"queue"}),
		BackendWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zonecourier",
			Name:      "backend_write_total",
			Help:      "Zone write attempts per backend, partitioned by outcome.",
		}, []string{"backend", "outcome"}),
		BackendDeletes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zonecourier",
			Name:      "backend_delete_total",
			Help:      "Zone delete attempts per backend, partitioned by outcome.",
		}, []string{"backend", "outcome"}),
		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zonecourier",
			Name:      "retry_attempt_total",
			Help:      "Retry attempts, partitioned by outcome.",
		}, []string{"outcome"}),
		DeadLetters: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "zonecourier",
			Name:      "dead_letters_total",
			Help:      "Items moved to dead_letters after exhausting retries.",
		}),
		PeerHealthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "zonecourier",
			Name:      "peer_healthy",
			Help:      "1 if a peer's consecutive failure count is below the threshold, else 0.",
		}, []string{"peer"}),
		ReconcilerRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "zonecourier",
			Name:      "reconciler_runs_total",
			Help:      "Reconciliation cycles completed.",
		}),
		ReconcilerOrphan: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "zonecourier",
			Name:      "reconciler_orphans_queued_total",
			Help:      "Orphan deletes enqueued by the reconciler.",
		}),
		ReconcilerHealed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zonecourier",
			Name:      "reconciler_backends_healed_total",
			Help:      "Backend healing saves enqueued, by backend.",
		}, []string{"backend"}),
	}
}
