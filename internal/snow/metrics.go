package snow

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the table API client.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec // Completed requests by table, method, status code
	RetriesTotal    prometheus.Counter     // Retry attempts across all requests
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates client metrics registered on the provided registerer.
// Passing a test registry keeps tests isolated from the global one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snow_client_requests_total",
		Help: "Total table API requests by table, method and status code",
	}, []string{"table", "method", "code"})

	retriesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snow_client_retries_total",
		Help: "Total retry attempts across all table API requests",
	})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snow_client_request_duration_seconds",
		Help:    "Table API request latency by table and method",
		Buckets: prometheus.DefBuckets,
	}, []string{"table", "method"})

	reg.MustRegister(requestsTotal)
	reg.MustRegister(retriesTotal)
	reg.MustRegister(requestDuration)

	return &Metrics{
		RequestsTotal:   requestsTotal,
		RetriesTotal:    retriesTotal,
		RequestDuration: requestDuration,
	}
}
