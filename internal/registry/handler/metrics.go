package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	beaconRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_requests_total",
		Help: "Total HTTP requests by method, route, and response status.",
	}, []string{"method", "path", "status"})

	beaconRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "beacon_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	beaconEntitiesTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "beacon_entities_total",
		Help: "Registered entities by kind.",
	}, []string{"kind"})

	beaconHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_health_checks_total",
		Help: "Health check probes by result.",
	}, []string{"result"})

	beaconScanVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_scan_verdicts_total",
		Help: "Security scan verdicts by status.",
	}, []string{"status"})

	beaconFederationSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_federation_sync_total",
		Help: "Federation sync items by source and outcome.",
	}, []string{"source", "outcome"})
)

// PrometheusMiddleware records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		beaconRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		beaconRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordHealthCheck records one probe result; wired into the health
// monitor at startup.
func RecordHealthCheck(success bool) {
	if success {
		beaconHealthChecksTotal.WithLabelValues("success").Inc()
	} else {
		beaconHealthChecksTotal.WithLabelValues("failure").Inc()
	}
}

// RecordScanVerdict records one admission scan outcome.
func RecordScanVerdict(status string) {
	beaconScanVerdictsTotal.WithLabelValues(status).Inc()
}

// RecordFederationSync records one federation sync item outcome.
func RecordFederationSync(source, outcome string) {
	beaconFederationSyncTotal.WithLabelValues(source, outcome).Inc()
}

// SetEntityCount publishes the current catalog size for one entity kind.
func SetEntityCount(kind string, n int) {
	beaconEntitiesTotal.WithLabelValues(kind).Set(float64(n))
}
