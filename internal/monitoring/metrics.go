package monitoring

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Render outcomes used as the "outcome" label.
const (
	OutcomeSuccess         = "success"
	OutcomeHostUnavailable = "host_unavailable"
	OutcomeAssemblyFailed  = "assembly_failed"
)

// Metrics holds the Prometheus collectors for the preview pipeline and the
// HTTP surface. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	Notifications  prometheus.Counter
	Renders        *prometheus.CounterVec
	RenderDuration prometheus.Histogram
	Coalesced      prometheus.Counter
	Diagnostics    *prometheus.CounterVec

	// Transport metrics
	WSClients       prometheus.Gauge
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Notifications: factory.NewCounter(prometheus.CounterOpts{
			Name: "livepad_notifications_total",
			Help: "Bundle change notifications received by the scheduler",
		}),
		Renders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livepad_renders_total",
				Help: "Render passes by outcome",
			},
			[]string{"outcome"},
		),
		RenderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "livepad_render_duration_seconds",
			Help:    "Time to assemble and swap one document",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		Coalesced: factory.NewCounter(prometheus.CounterOpts{
			Name: "livepad_renders_coalesced_total",
			Help: "Notifications superseded by a later change before rendering",
		}),
		Diagnostics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livepad_diagnostics_total",
				Help: "Diagnostics reported from hosted documents by kind",
			},
			[]string{"kind"},
		),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livepad_ws_clients",
			Help: "Connected editor websocket clients",
		}),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livepad_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "livepad_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordNotification counts one change notification.
func (m *Metrics) RecordNotification() {
	if m == nil {
		return
	}
	m.Notifications.Inc()
}

// RecordRender counts one render pass and its duration.
func (m *Metrics) RecordRender(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Renders.WithLabelValues(outcome).Inc()
	m.RenderDuration.Observe(d.Seconds())
}

// RecordCoalesced counts notifications that never rendered on their own.
func (m *Metrics) RecordCoalesced(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Coalesced.Add(float64(n))
}

// RecordDiagnostic counts one diagnostic.
func (m *Metrics) RecordDiagnostic(kind string) {
	if m == nil {
		return
	}
	m.Diagnostics.WithLabelValues(kind).Inc()
}

// SetWSClients reports the number of connected editors.
func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}

// Middleware records request counts and latency. route should be the
// registered pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack supports the websocket upgrade on /ws.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
