// Package observability holds the Prometheus collectors shared by the query
// client, the cache stores and the HTTP surface.
package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphql_upstream_latency_seconds",
			Help:    "Latency of GraphQL upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"operation", "outcome"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Cache store operations by op and result.",
		},
		[]string{"op", "driver", "result"},
	)

	cacheOpSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_operation_duration_seconds",
			Help:    "Cache store operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op", "driver"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_fetches_total",
			Help: "Results emitted by logical queries, by policy and source.",
		},
		[]string{"operation", "policy", "source"},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_policy_decisions_total",
			Help: "Next-fetch-policy decisions by reason and transition.",
		},
		[]string{"reason", "from", "to", "strategy"},
	)

	invalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Invalidation events applied to the response cache.",
		},
		[]string{"op", "outcome"},
	)

	invalidatedKeys = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_invalidated_keys_total",
			Help: "Cached responses removed by invalidation events.",
		},
	)

	kafkaConsumerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Invalidation consumer errors by kind.",
		},
		[]string{"kind"},
	)

	kafkaMessageSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_process_seconds",
			Help:    "Time to apply one invalidation message, by outcome.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"topic", "outcome"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dogquery_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

// Collectors returns every collector owned by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		cacheOpTotal,
		cacheOpSeconds,
		cacheResults,
		fetchesTotal,
		decisionsTotal,
		invalidationsTotal,
		invalidatedKeys,
		kafkaConsumerErrors,
		kafkaMessageSeconds,
		buildInfo,
	}
}

// Init registers the collectors on reg. Registering twice on the same
// registry is not an error.
func Init(reg prometheus.Registerer) error {
	if reg == nil {
		return nil
	}
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(operation string, err error, durationSeconds float64) {
	if operation == "" {
		operation = "anonymous"
	}
	upstreamLatencySeconds.WithLabelValues(operation, outcome(err)).Observe(durationSeconds)
}

func ObserveCacheOp(op, driver string, err error, durationSeconds float64) {
	cacheOpTotal.WithLabelValues(op, driver, outcome(err)).Inc()
	cacheOpSeconds.WithLabelValues(op, driver).Observe(durationSeconds)
}

func IncCacheHit()  { cacheResults.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }

func IncFetch(operation, policy, source string) {
	if operation == "" {
		operation = "anonymous"
	}
	fetchesTotal.WithLabelValues(operation, policy, source).Inc()
}

func IncDecision(reason, from, to, strategy string) {
	decisionsTotal.WithLabelValues(reason, from, to, strategy).Inc()
}

func ObserveInvalidation(op string, keys int, err error) {
	invalidationsTotal.WithLabelValues(op, outcome(err)).Inc()
	if keys > 0 {
		invalidatedKeys.Add(float64(keys))
	}
}

func IncKafkaConsumerError(kind string) { kafkaConsumerErrors.WithLabelValues(kind).Inc() }

func ObserveKafkaMessage(topic string, err error, durationSeconds float64) {
	kafkaMessageSeconds.WithLabelValues(topic, outcome(err)).Observe(durationSeconds)
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
