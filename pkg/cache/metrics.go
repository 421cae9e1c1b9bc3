package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_cache_lookups_total",
			Help: "Feed page cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	cacheStoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "review_cache_stored_bytes_total",
			Help: "Bytes of feed page bodies written to the cache",
		},
	)

	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_cache_errors_total",
			Help: "Page cache operation errors",
		},
		[]string{"operation"},
	)
)
