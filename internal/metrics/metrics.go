package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "influencer",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "influencer",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20, 60},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "influencer",
		Name:      "provider_requests_total",
		Help:      "Total requests to external dependencies by service name and result status.",
	}, []string{"provider", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "influencer",
		Name:      "provider_request_duration_seconds",
		Help:      "External dependency request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider"})

	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "influencer",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per dependency: 0 closed, 1 open, 2 half-open.",
	}, []string{"breaker"})

	BreakerTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "influencer",
		Name:      "breaker_transitions_total",
		Help:      "Circuit breaker transitions by breaker and target state.",
	}, []string{"breaker", "to"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "influencer",
		Name:      "cache_hits_total",
		Help:      "Total number of result cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "influencer",
		Name:      "cache_misses_total",
		Help:      "Total number of result cache misses.",
	})

	CacheEvictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "influencer",
		Name:      "cache_evictions_total",
		Help:      "Result cache removals by reason (expired, lru, invalidated).",
	}, []string{"reason"})

	ScrapedProfilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "influencer",
		Name:      "scraped_profiles_total",
		Help:      "Profiles produced by the scraping budget manager by platform and data source.",
	}, []string{"platform", "source"})

	FallbackStrategyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "influencer",
		Name:      "fallback_strategy_total",
		Help:      "Fallback chain strategy outcomes.",
	}, []string{"strategy", "outcome"})

	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "influencer",
		Name:      "searches_total",
		Help:      "Completed searches by mode and result (success, empty, cached).",
	}, []string{"mode", "result"})

	ScorerAccuracy = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "influencer",
		Name:      "scorer_rolling_accuracy",
		Help:      "Quality scorer accuracy over the most recent feedback records.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		BreakerState,
		BreakerTransitionsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheEvictionsTotal,
		ScrapedProfilesTotal,
		FallbackStrategyTotal,
		SearchesTotal,
		ScorerAccuracy,
	)
}
