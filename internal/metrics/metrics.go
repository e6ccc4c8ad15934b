package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinefilter",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cinefilter",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	SearchesStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cinefilter",
		Name:      "searches_started_total",
		Help:      "Total number of search pipelines started.",
	})

	SearchesCancelledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cinefilter",
		Name:      "searches_cancelled_total",
		Help:      "Total number of searches cancelled before completion.",
	})

	ActiveSearches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cinefilter",
		Name:      "active_searches",
		Help:      "Number of search pipelines currently running.",
	})

	VerificationOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinefilter",
		Name:      "verification_outcomes_total",
		Help:      "Total per-movie verification outcomes by status.",
	}, []string{"status"})

	APICacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinefilter",
		Name:      "api_cache_hits_total",
		Help:      "Total remote API cache hits by service.",
	}, []string{"service"})

	APICacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinefilter",
		Name:      "api_cache_misses_total",
		Help:      "Total remote API cache misses by service.",
	}, []string{"service"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SearchesStartedTotal,
		SearchesCancelledTotal,
		ActiveSearches,
		VerificationOutcomesTotal,
		APICacheHitsTotal,
		APICacheMissesTotal,
	)
}
