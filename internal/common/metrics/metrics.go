// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_store_operations_total",
			Help: "Total number of activity store operations by outcome",
		},
		[]string{"backend", "operation", "outcome"},
	)

	RosterSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "activity_roster_size",
			Help: "Current number of participants per activity",
		},
		[]string{"activity"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activities_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	StoreFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_store_fallbacks_total",
			Help: "Times the configured database was unreachable and the in-memory store was used",
		},
	)
)

// ObserveStoreOperation records one store call; outcome is "ok" or an error code.
func ObserveStoreOperation(backend, operation, outcome string) {
	StoreOperations.WithLabelValues(backend, operation, outcome).Inc()
}
