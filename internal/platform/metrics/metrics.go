package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	RequestsProcessed *prometheus.CounterVec
	PipelineLatency   *prometheus.HistogramVec

	RateLimitRejections *prometheus.CounterVec
	ValidationFailures  prometheus.Counter

	UpstreamCalls   *prometheus.CounterVec
	UpstreamRetries prometheus.Counter

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	TokenRefreshes     prometheus.Counter
	TokenInvalidations prometheus.Counter
	AuthFailures       prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RequestsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "outpost_requests_processed_total",
			Help: "Total requests through the pipeline, labeled by outcome code",
		}, []string{"outcome"}),
		PipelineLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "outpost_pipeline_latency_seconds",
			Help:    "End-to-end pipeline latency in seconds, labeled by endpoint pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		RateLimitRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "outpost_rate_limit_rejections_total",
			Help: "Total admission rejections, labeled by scope",
		}, []string{"scope"}),
		ValidationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outpost_validation_failures_total",
			Help: "Total requests rejected by structural or shape validation",
		}),
		UpstreamCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "outpost_upstream_calls_total",
			Help: "Total upstream HTTP calls, labeled by status class",
		}, []string{"status_class"}),
		UpstreamRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outpost_upstream_retries_total",
			Help: "Total upstream retry attempts after transient failures",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outpost_cache_hits_total",
			Help: "Total response-cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outpost_cache_misses_total",
			Help: "Total response-cache misses",
		}),
		TokenRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outpost_token_refreshes_total",
			Help: "Total upstream token refresh calls",
		}),
		TokenInvalidations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outpost_token_invalidations_total",
			Help: "Total stored tokens deleted after upstream rejection",
		}),
		AuthFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outpost_auth_failures_total",
			Help: "Total authentication failures",
		}),
	}
}
