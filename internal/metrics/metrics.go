// Package metrics exposes sinkron's Prometheus instrumentation, adapted
// from the teacher's metrics.go: the shape (counters/gauges/histograms
// registered once at package init, incremented from hot paths) is kept,
// the token-price-specific series are replaced with the sync engine's own
// concerns — colrev bumps, broadcast fan-out, mutation latency, active
// actors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sinkron_connections_active",
		Help: "Currently open client websocket connections.",
	})

	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinkron_connections_total",
		Help: "Total websocket connections accepted.",
	})

	ConnectionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sinkron_connections_rejected_total",
		Help: "Connections rejected before upgrade, by reason.",
	}, []string{"reason"})

	DisconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sinkron_disconnects_total",
		Help: "Client disconnects, by reason; reason rate_limited counts inbound messages dropped by the rate limiter, which do not disconnect the client.",
	}, []string{"reason"})

	ActiveCollections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sinkron_active_collections",
		Help: "CollectionActors currently running.",
	})

	SubscribersPerCollection = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sinkron_collection_subscribers",
		Help:    "Number of subscribed clients per collection at broadcast time.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
	})

	ColrevBumpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinkron_colrev_bumps_total",
		Help: "Total colrev increments across all collections.",
	})

	MutationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sinkron_mutation_duration_seconds",
		Help:    "Time to process a client mutation end to end, by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	MergeTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinkron_merge_timeouts_total",
		Help: "CRDT merges that exceeded the worker pool timeout or could not be queued.",
	})

	MergeQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sinkron_merge_queue_depth",
		Help: "Current depth of the CRDT merge worker pool queue.",
	})

	MergeQueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinkron_merge_queue_dropped_total",
		Help: "Merge tasks dropped because the worker pool queue was full.",
	})

	BroadcastDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sinkron_broadcast_dropped_total",
		Help: "Broadcast sends dropped because a client's send buffer was full.",
	}, []string{"col_id"})

	SyncAuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sinkron_sync_auth_failures_total",
		Help: "Rejected sync-auth-url handshakes.",
	})
)
