// Package metrics provides the Prometheus instruments for gymdesk.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Collector holds every gymdesk instrument.
type Collector struct {
	resourceCalls   *prometheus.CounterVec
	resourceLatency *prometheus.HistogramVec
	rollbacks       *prometheus.CounterVec
	authEvents      *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		resourceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gymdesk_resource_calls_total",
			Help: "Resource backend calls by collection, operation and outcome.",
		}, []string{"collection", "op", "outcome"}),
		resourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gymdesk_resource_latency_seconds",
			Help:    "Resource backend call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection", "op"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gymdesk_optimistic_rollbacks_total",
			Help: "Optimistic mutations reverted after a backend failure.",
		}, []string{"collection", "op"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gymdesk_auth_events_total",
			Help: "Session transitions by event.",
		}, []string{"event"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gymdesk_http_responses_total",
			Help: "Local HTTP responses by status code.",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.resourceCalls,
		c.resourceLatency,
		c.rollbacks,
		c.authEvents,
		c.httpStatus,
	)

	return c
}

// RecordResourceCall records one backend call.
func (c *Collector) RecordResourceCall(collection, op string, err error, d time.Duration) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	c.resourceCalls.WithLabelValues(collection, op, outcome).Inc()
	c.resourceLatency.WithLabelValues(collection, op).Observe(d.Seconds())
}

// RecordRollback records an optimistic mutation that was reverted.
func (c *Collector) RecordRollback(collection, op string) {
	c.rollbacks.WithLabelValues(collection, op).Inc()
}

// RecordAuthEvent records a session transition.
func (c *Collector) RecordAuthEvent(event string) {
	c.authEvents.WithLabelValues(event).Inc()
}

// RecordHTTPStatus records a response status code.
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
