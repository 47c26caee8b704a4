package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "webmirror"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled by the preview server",
		},
		[]string{"code"},
	)

	bytesServedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_served_total",
			Help:      "Mirror file bytes sent to clients",
		},
	)

	notFoundTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "not_found_total",
			Help:      "Requests for paths missing from the mirror tree",
		},
	)

	cloneActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "clone_active",
			Help:      "1 while a clone run triggered via the API is in progress",
		},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(bytesServedTotal)
	prometheus.MustRegister(notFoundTotal)
	prometheus.MustRegister(cloneActive)
}

// metricsMiddleware counts every request by response code.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		requestsTotal.WithLabelValues(strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func metricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
