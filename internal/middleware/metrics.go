package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records rate, errors and duration per route. The collectors are
// created per call so several routers can each own a registry.
func Metrics(reg prometheus.Registerer) gin.HandlerFunc {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waypool",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests (Rate)",
		},
		[]string{"method", "route", "status"},
	)
	requestErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waypool",
			Name:      "http_request_errors_total",
			Help:      "Total number of HTTP request errors",
		},
		[]string{"method", "route", "status", "error_type"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "waypool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds (Duration)",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	reg.MustRegister(requests, requestErrors, duration)

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		statusStr := strconv.Itoa(status)
		// Unmatched paths share one label to keep cardinality bounded.
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		requests.WithLabelValues(method, route, statusStr).Inc()

		if status >= 400 && status < 500 {
			requestErrors.WithLabelValues(method, route, statusStr, "client").Inc()
		} else if status >= 500 {
			requestErrors.WithLabelValues(method, route, statusStr, "server").Inc()
		}

		duration.WithLabelValues(method, route, statusStr).Observe(time.Since(start).Seconds())
	}
}
