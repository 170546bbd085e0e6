package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChecksTotal tracks endpoint checks per source and result
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedguard_checks_total",
			Help: "Total number of endpoint checks",
		},
		[]string{"source", "result"},
	)

	// CheckLatency tracks check latency per source
	CheckLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedguard_check_latency_seconds",
			Help:    "Endpoint check latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// ErrorsTotal tracks classified failures per source and kind
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedguard_errors_total",
			Help: "Total number of classified check failures",
		},
		[]string{"source", "kind"},
	)

	// HealingAttemptsTotal tracks strategy attempts per strategy and result
	HealingAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedguard_healing_attempts_total",
			Help: "Total number of healing strategy attempts",
		},
		[]string{"strategy", "result"},
	)

	// CacheResolutionsTotal tracks cache chain resolutions per tier
	CacheResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedguard_cache_resolutions_total",
			Help: "Total number of cache chain resolutions by tier",
		},
		[]string{"tier"},
	)

	// EndpointStatus tracks the current status rank per endpoint
	// (0=healthy 1=degraded 2=critical 3=failed)
	EndpointStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feedguard_endpoint_status",
			Help: "Current endpoint health status rank",
		},
		[]string{"endpoint"},
	)

	// OpenAlerts tracks currently open alerts per level
	OpenAlerts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feedguard_open_alerts",
			Help: "Number of currently open alerts",
		},
		[]string{"level"},
	)

	// DBConnectionPoolUsage tracks database pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedguard_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
