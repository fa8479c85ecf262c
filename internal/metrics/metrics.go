// Package metrics exposes Prometheus instruments for the order pipeline and
// the HTTP surface. All Orders methods are safe on a nil receiver.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type Orders struct {
	placed     *prometheus.CounterVec
	cancelled  *prometheus.CounterVec
	failures   *prometheus.CounterVec
	shortfalls *prometheus.CounterVec
}

func NewOrders(reg prometheus.Registerer) *Orders {
	m := &Orders{
		placed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "placed_total",
			Help:      "Orders placed, by commit mode.",
		}, []string{"mode"}),
		cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "cancelled_total",
			Help:      "Orders cancelled, by commit mode.",
		}, []string{"mode"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "failures_total",
			Help:      "Failed order operations, by operation and error kind.",
		}, []string{"operation", "kind"}),
		shortfalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "stock_shortfalls_total",
			Help:      "Stock updates that failed after an order write without transaction.",
		}, []string{"transition"}),
	}
	reg.MustRegister(m.placed, m.cancelled, m.failures, m.shortfalls)
	return m
}

func (m *Orders) Placed(mode string) {
	if m == nil {
		return
	}
	m.placed.WithLabelValues(mode).Inc()
}

func (m *Orders) Cancelled(mode string) {
	if m == nil {
		return
	}
	m.cancelled.WithLabelValues(mode).Inc()
}

func (m *Orders) Failed(operation, kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(operation, kind).Inc()
}

func (m *Orders) Shortfall(transition string) {
	if m == nil {
		return
	}
	m.shortfalls.WithLabelValues(transition).Inc()
}

type HTTP struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
	}
	reg.MustRegister(m.requests, m.latency)
	return m
}

// Middleware records one sample per request, labelled by the matched route.
func (m *HTTP) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	}
}

// Handler serves the given gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
