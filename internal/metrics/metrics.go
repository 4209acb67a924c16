// Package metrics declares the Prometheus collectors shared by the registry and
// the HTTP and gRPC surfaces.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventsim"

var (
	// QueriesTotal counts state queries by direction and result.
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queries_total",
		Help:      "State queries by direction and result",
	}, []string{"direction", "result"})

	// QueryDuration tracks how long one state computation takes.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "query_duration_seconds",
		Help:      "State computation latency in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
	}, []string{"direction"})

	// EventsInScope tracks how many events a query had to fold.
	EventsInScope = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "events_in_scope",
		Help:      "Events in scope per state query",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
	})

	// AppendsTotal counts timeline appends by result.
	AppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "appends_total",
		Help:      "Timeline appends by result",
	}, []string{"result"})

	// Entities is the number of anchored entities in the registry.
	Entities = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "entities",
		Help:      "Anchored entities held in memory",
	})

	// RequestsTotal counts API requests by transport, route and status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "API requests by transport, route and status",
	}, []string{"transport", "route", "status"})
)

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
