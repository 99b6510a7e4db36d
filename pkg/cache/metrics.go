package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricHits tracks probe hits by tier
	metricHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiercache_hits_total",
			Help: "Total number of cache hits per tier",
		},
		[]string{"tier"}, // "memory", "remote", "edge", "client"
	)

	// metricMisses tracks whole-operation misses
	metricMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tiercache_misses_total",
			Help: "Total number of cache misses across all tiers",
		},
	)

	// metricEvictions tracks evictions by tier
	metricEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiercache_evictions_total",
			Help: "Total number of entries evicted per tier",
		},
		[]string{"tier"},
	)

	// metricTierErrors tracks absorbed backend errors
	metricTierErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiercache_tier_errors_total",
			Help: "Total number of tier backend errors absorbed",
		},
		[]string{"tier", "operation"}, // "get", "set", "delete", "clear"
	)

	// metricDroppedTasks tracks background tasks dropped under overload
	metricDroppedTasks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tiercache_dropped_tasks_total",
			Help: "Total number of background tasks dropped because the queue was full",
		},
	)

	// metricMemoryEntries tracks the in-process tier's resident entry count
	metricMemoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tiercache_memory_entries",
			Help: "Current number of entries resident in the memory tier",
		},
	)

	// metricEntryBytes observes stored payload sizes after compression
	metricEntryBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tiercache_entry_bytes",
			Help:    "Stored payload sizes in bytes, post compression",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
	)
)
