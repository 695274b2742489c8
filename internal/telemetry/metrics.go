package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration tracks HTTP request latency. Shared across all services.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "blip0",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// CacheOpsTotal counts cache-client operations by op and outcome (hit, miss, error).
var CacheOpsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "blip0",
		Subsystem: "cache",
		Name:      "ops_total",
		Help:      "Total cache client operations by op and outcome.",
	},
	[]string{"op", "outcome"},
)

// QuotaRejectionsTotal counts quota-exceeded rejections by tenant plan and resource.
var QuotaRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "blip0",
		Subsystem: "quota",
		Name:      "rejections_total",
		Help:      "Total requests rejected for exceeding a tenant quota.",
	},
	[]string{"plan", "resource"},
)

// ChangeEventsPublishedTotal counts change-feed events published by channel and action.
var ChangeEventsPublishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "blip0",
		Subsystem: "changefeed",
		Name:      "published_total",
		Help:      "Total configuration-change events published.",
	},
	[]string{"channel", "action"},
)

// NetworkValidationsTotal counts network RPC validations by network type and result.
var NetworkValidationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "blip0",
		Subsystem: "network",
		Name:      "validations_total",
		Help:      "Total network RPC validation runs by network type and outcome.",
	},
	[]string{"network_type", "outcome"},
)

// TriggerExecutionDuration observes recorded trigger execution durations in
// milliseconds, bucketed, for dashboarding trends reported by §4.5.3 stats.
var TriggerExecutionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "blip0",
		Subsystem: "trigger",
		Name:      "execution_duration_ms",
		Help:      "Recorded trigger execution duration in milliseconds.",
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	},
	[]string{"execution_type", "status"},
)

// All returns all control-plane-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		CacheOpsTotal,
		QuotaRejectionsTotal,
		ChangeEventsPublishedTotal,
		NetworkValidationsTotal,
		TriggerExecutionDuration,
	}
}
