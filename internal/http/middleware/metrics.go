// This file exposes Prometheus instrumentation for HTTP traffic. Labels are
// bounded: the route template (e.g. /api/v1/tickets/:id/messages), or
// "unmatched" when no route matched, plus method and status.
//
// Websocket upgrades are tracked apart from REST traffic. Their handler
// returns only when the socket closes, so folding them into the latency
// histogram would bury request latencies under session lengths.

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedRoute = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// Status is left out to keep histogram cardinality down.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests, websocket sessions excluded.",
		},
	)

	// Message pages and area markers are small JSON documents.
	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes.",
			Buckets: prometheus.ExponentialBuckets(128, 4, 8), // 128B..2MiB
		},
		[]string{"method", "path"},
	)

	wsUpgrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_ws_upgrades_total",
			Help: "Websocket upgrade attempts by route and outcome (accepted|refused).",
		},
		[]string{"path", "outcome"},
	)

	wsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_ws_sessions_active",
			Help: "Websocket sessions currently held open by a handler.",
		},
	)

	wsSession = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_ws_session_seconds",
			Help:    "Lifetime of accepted websocket sessions.",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 4 * 3600},
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, wsUpgrades, wsActive, wsSession)
}

func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedRoute
}

// Metrics returns a Gin middleware that instruments requests with Prometheus.
//
//	r.Use(middleware.Metrics())
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
//
// REST requests feed http_requests_total, http_request_duration_seconds,
// http_requests_inflight and http_response_size_bytes. Websocket requests
// feed http_ws_upgrades_total and, once accepted, http_ws_sessions_active and
// http_ws_session_seconds. A refused upgrade is also counted as a request.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := routeLabel(c)
		method := c.Request.Method

		if c.IsWebsocket() {
			wsActive.Inc()
			c.Next()
			wsActive.Dec()

			status := c.Writer.Status()
			if status >= http.StatusBadRequest {
				wsUpgrades.WithLabelValues(path, "refused").Inc()
				httpReqs.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
				return
			}
			wsUpgrades.WithLabelValues(path, "accepted").Inc()
			wsSession.WithLabelValues(path).Observe(time.Since(start).Seconds())
			return
		}

		httpInflight.Inc()
		c.Next()
		httpInflight.Dec()

		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		// Size is -1 when nothing was written (e.g. 204).
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
