package metrics

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// HTTPRequestsTotal counts served requests by route template and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicspot",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests, labeled by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "civicspot",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Time to serve an HTTP request.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "route"})

	// ReportOperationsTotal counts lifecycle operations by outcome (ok or the error kind).
	ReportOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicspot",
		Subsystem: "reports",
		Name:      "operations_total",
		Help:      "Total number of report lifecycle operations, labeled by operation and outcome.",
	}, []string{"operation", "outcome"})

	SaveConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "civicspot",
		Subsystem: "reports",
		Name:      "save_conflicts_total",
		Help:      "Total number of report saves rejected because of a concurrent write.",
	})

	// MediaCleanupTotal counts orphaned media deletions by result.
	MediaCleanupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicspot",
		Subsystem: "media",
		Name:      "cleanup_total",
		Help:      "Total number of orphaned media deletion attempts, labeled by result.",
	}, []string{"result"})

	EventPublishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "civicspot",
		Subsystem: "events",
		Name:      "publish_errors_total",
		Help:      "Total number of report events that could not be published.",
	})
)

// Register registers the collectors with the default registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			ReportOperationsTotal,
			SaveConflictsTotal,
			MediaCleanupTotal,
			EventPublishErrorsTotal,
		)
	})
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
