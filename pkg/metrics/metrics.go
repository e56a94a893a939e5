// Package metrics exposes Prometheus collectors for bridge traffic.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sdk_bridge"

// Registry holds the process-wide collectors served by Handler.
var Registry = prometheus.NewRegistry()

var (
	defaultOnce       sync.Once
	defaultCollectors *Collectors
)

func init() {
	Registry.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Collectors groups the bridge metrics. A nil *Collectors records nothing.
type Collectors struct {
	calls           *prometheus.CounterVec
	replies         *prometheus.CounterVec
	transportErrors *prometheus.CounterVec
	outstanding     *prometheus.GaugeVec
	drainSize       prometheus.Histogram
	drainDuration   prometheus.Histogram
}

// New creates collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "calls",
				Name:      "sent_total",
				Help:      "Total number of calls sent to the native runtime.",
			},
			[]string{"module", "operation", "kind"},
		),
		replies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "replies",
				Name:      "received_total",
				Help:      "Total number of native replies by dispatch outcome.",
			},
			[]string{"module", "operation", "outcome"},
		),
		transportErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transport",
				Name:      "errors_total",
				Help:      "Total number of failed sends to the native runtime.",
			},
			[]string{"module", "operation"},
		),
		outstanding: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "outstanding_entries",
				Help:      "Outstanding correlation entries by kind.",
			},
			[]string{"kind"},
		),
		drainSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "executor",
				Name:      "drain_size",
				Help:      "Invocations run per drain.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 8), // 1 to 128
			},
		),
		drainDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "executor",
				Name:      "drain_duration_seconds",
				Help:      "Duration of non-empty drains.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~200ms
			},
		),
	}

	if reg != nil {
		reg.MustRegister(c.calls, c.replies, c.transportErrors, c.outstanding, c.drainSize, c.drainDuration)
	}
	return c
}

// Default returns the collectors registered on Registry.
func Default() *Collectors {
	defaultOnce.Do(func() {
		defaultCollectors = New(Registry)
	})
	return defaultCollectors
}

// Handler returns an HTTP handler exposing Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordCall counts a sent call.
func (c *Collectors) RecordCall(module, operation, kind string) {
	if c == nil {
		return
	}
	if kind == "" {
		kind = "query"
	}
	c.calls.WithLabelValues(module, operation, kind).Inc()
}

// RecordReply counts a reply by dispatch outcome.
func (c *Collectors) RecordReply(module, operation, outcome string) {
	if c == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	c.replies.WithLabelValues(module, operation, outcome).Inc()
}

// RecordTransportError counts a failed send.
func (c *Collectors) RecordTransportError(module, operation string) {
	if c == nil {
		return
	}
	c.transportErrors.WithLabelValues(module, operation).Inc()
}

// SetOutstanding sets the outstanding entry gauge for a kind.
func (c *Collectors) SetOutstanding(kind string, n int) {
	if c == nil {
		return
	}
	c.outstanding.WithLabelValues(kind).Set(float64(n))
}

// RecordDrain records one non-empty drain.
func (c *Collectors) RecordDrain(n int, d time.Duration) {
	if c == nil || n == 0 {
		return
	}
	c.drainSize.Observe(float64(n))
	c.drainDuration.Observe(d.Seconds())
}
