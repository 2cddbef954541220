package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/remotedom/internal/domain/mutation"
)

// Metrics holds all Prometheus metrics on a private registry
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Surface metrics
	SurfacesActive prometheus.Gauge
	RecordsQueued  *prometheus.CounterVec
	RecordsFlushed *prometheus.CounterVec
	RecordsDropped *prometheus.CounterVec
	Flushes        *prometheus.CounterVec
	BatchSize      prometheus.Histogram
	CallsSent      *prometheus.CounterVec
	ScriptRuns     *prometheus.CounterVec
	ScriptDuration prometheus.Histogram
	OutboundErrors *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSDropped     prometheus.Counter
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for the JSON status endpoint
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON status endpoint
type Snapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	AverageDurationMs float64 `json:"average_duration_ms"`
	ActiveConnections int64   `json:"active_connections"`
	RecordsFlushed    int64   `json:"records_flushed"`
	UptimeSeconds     float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics creates a metrics collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotedom_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remotedom_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remotedom_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remotedom_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Surface metrics
		SurfacesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "remotedom_surfaces_active",
				Help: "Number of surfaces in the environment registry",
			},
		),
		RecordsQueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotedom_mutation_records_queued_total",
				Help: "Mutation records queued by kind",
			},
			[]string{"kind"},
		),
		RecordsFlushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotedom_mutation_records_flushed_total",
				Help: "Mutation records delivered by flush reason",
			},
			[]string{"reason"},
		),
		RecordsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotedom_mutation_records_dropped_total",
				Help: "Mutation records discarded without delivery",
			},
			[]string{"reason"},
		),
		Flushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotedom_flushes_total",
				Help: "Mutate messages sent by flush reason",
			},
			[]string{"reason"},
		),
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "remotedom_batch_records",
				Help:    "Records per mutate message",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		CallsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotedom_calls_total",
				Help: "Call messages sent by method",
			},
			[]string{"method"},
		),
		ScriptRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotedom_script_executions_total",
				Help: "Script executions by status",
			},
			[]string{"status"},
		),
		ScriptDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "remotedom_script_duration_seconds",
				Help:    "Script execution duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
			},
		),
		OutboundErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotedom_outbound_errors_total",
				Help: "Failed deliveries to optional sinks",
			},
			[]string{"sink"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "remotedom_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "remotedom_ws_dropped_total",
				Help: "WebSocket clients dropped for falling behind",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remotedom_ws_messages_total",
				Help: "Total number of WebSocket frames",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "remotedom_uptime_seconds",
			Help: "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the private registry backing these metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordScript records one script execution
func (m *Metrics) RecordScript(status string, duration time.Duration) {
	m.ScriptRuns.WithLabelValues(status).Inc()
	m.ScriptDuration.Observe(duration.Seconds())
}

// RecordOutboundError counts a failed delivery to an optional sink
func (m *Metrics) RecordOutboundError(sink string) {
	m.OutboundErrors.WithLabelValues(sink).Inc()
}

// Surfaces returns the gauge the environment registry keeps current
func (m *Metrics) Surfaces() prometheus.Gauge {
	return m.SurfacesActive
}

// MutationQueued counts a record entering a surface batch
func (m *Metrics) MutationQueued(kind mutation.Kind) {
	m.RecordsQueued.WithLabelValues(kind.String()).Inc()
}

// BatchSent counts a delivered mutate message
func (m *Metrics) BatchSent(records int, reason string) {
	m.Flushes.WithLabelValues(reason).Inc()
	m.RecordsFlushed.WithLabelValues(reason).Add(float64(records))
	m.BatchSize.Observe(float64(records))

	m.mu.Lock()
	m.snapshot.RecordsFlushed += int64(records)
	m.mu.Unlock()
}

// BatchDropped counts records discarded without delivery
func (m *Metrics) BatchDropped(records int, reason string) {
	m.RecordsDropped.WithLabelValues(reason).Add(float64(records))
}

// CallSent counts a call message
func (m *Metrics) CallSent(method string) {
	m.CallsSent.WithLabelValues(method).Inc()
}

// ClientConnected increments WebSocket connections
func (m *Metrics) ClientConnected() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// ClientDisconnected decrements WebSocket connections
func (m *Metrics) ClientDisconnected() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// ClientDropped counts a slow client removed by the hub
func (m *Metrics) ClientDropped() {
	m.WSDropped.Inc()
}

// Frame records a WebSocket frame
func (m *Metrics) Frame(direction, frameType string) {
	m.WSMessages.WithLabelValues(direction, frameType).Inc()
}

// Snapshot returns current values for the JSON status endpoint
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	if snap.TotalRequests > 0 {
		snap.AverageDurationMs = snap.totalDuration / float64(snap.TotalRequests) * 1000
	}
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
