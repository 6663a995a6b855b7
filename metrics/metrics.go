// Package metrics provides Prometheus metrics for the HTTP adapter and the
// pricing session.
//
// HTTP:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//   - http_response_size_bytes: Histogram with path label
//   - http_rejected_requests_total: Counter with reason label (body_too_large,
//     rate_limited, headers_too_large)
//
// Domain:
//   - search_queries_total: Counter with outcome label (prompt, empty, hit)
//   - search_duration_seconds: Histogram of query evaluation time
//   - payer_rate_loads_total: Counter with result label (ok, error, discarded)
//   - cart_mutations_total: Counter with operation label
//   - catalog_items / payers_total: Gauges set after each load
//   - catalog_loads_total: Counter with result label
//
// All metrics are automatically registered with the Prometheus default registry
// during package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response body size",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"path"},
	)

	HTTPRejectedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rejected_requests_total",
			Help: "Requests refused by the size and rate guards",
		},
		[]string{"reason"},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	SearchQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_queries_total",
			Help: "Evaluated search queries by outcome",
		},
		[]string{"outcome"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search_duration_seconds",
			Help:    "Search evaluation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	PayerRateLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payer_rate_loads_total",
			Help: "Payer rate table loads by result",
		},
		[]string{"result"},
	)

	CartMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Cart mutations by operation",
		},
		[]string{"operation"},
	)

	CatalogItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_items",
			Help: "Items in the loaded catalog",
		},
	)

	PayersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "payers_total",
			Help: "Payers in the loaded directory",
		},
	)

	CatalogLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_loads_total",
			Help: "Catalog loads by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(HTTPResponseSize)
	prometheus.MustRegister(HTTPRejectedRequests)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(SearchQueries)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(PayerRateLoads)
	prometheus.MustRegister(CartMutations)
	prometheus.MustRegister(CatalogItems)
	prometheus.MustRegister(PayersTotal)
	prometheus.MustRegister(CatalogLoads)
}
