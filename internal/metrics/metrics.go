package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Redirects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkshort_redirects_total",
		Help: "Redirect requests by outcome (hit, not_found, error).",
	}, []string{"outcome"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkshort_cache_hits_total",
		Help: "Resolve-path cache hits.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkshort_cache_misses_total",
		Help: "Resolve-path cache misses.",
	})

	ClicksRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkshort_clicks_recorded_total",
		Help: "Click events accepted into the recording queue.",
	})

	// ClicksDropped — события, сброшенные при переполненной очереди.
	// Редирект важнее полноты аналитики, поэтому считаем, а не блокируемся.
	ClicksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkshort_clicks_dropped_total",
		Help: "Click events dropped because the recording queue was full.",
	})

	ClickBatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkshort_click_batch_failures_total",
		Help: "Click batches that failed to persist after retries.",
	})

	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkshort_breaker_transitions_total",
		Help: "Circuit breaker state transitions by target state.",
	}, []string{"to"})
)
