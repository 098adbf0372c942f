package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Connections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "poker_connections",
		Help: "Current number of live client connections",
	}, []string{"transport"})
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poker_commands_total",
		Help: "Room commands handled, by type and result",
	}, []string{"type", "result"})
	StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poker_store_errors_total",
		Help: "Failed room store operations",
	}, []string{"op"})
	DroppedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poker_dropped_messages_total",
		Help: "Inbound messages dropped by the per-connection rate limiter",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(Connections, CommandsTotal, StoreErrors, DroppedMessages, HttpRequestsTotal, HttpRequestDuration)
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
