// Package metrics exposes Prometheus instruments for gateway traffic and uploads.
package metrics

import (
	"regexp"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "memories_gateway"

// Outcome labels.
const (
	OutcomeOK           = "ok"
	OutcomeNetworkError = "network_error"
	OutcomeBackendError = "backend_error"
	OutcomeUploadError  = "upload_error"
)

// OtherEndpoint labels calls to endpoints that are malformed or arrive after
// MaxEndpoints distinct endpoints have been seen.
const OtherEndpoint = "other"

// MaxEndpoints bounds the distinct endpoint label values.
const MaxEndpoints = 128

var endpointPattern = regexp.MustCompile(`^/[A-Za-z][A-Za-z0-9_]*/_?[A-Za-z][A-Za-z0-9_]*$`)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	mu        sync.Mutex
	endpoints map[string]struct{}

	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	uploadPhase *prometheus.HistogramVec
	uploads     *prometheus.CounterVec
	traceEvents *prometheus.CounterVec
	traceDrops  prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		endpoints: make(map[string]struct{}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "RPC invocations by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "RPC round trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		uploadPhase: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each upload phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase", "outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "runs_total",
			Help:      "Upload runs by terminal phase and outcome.",
		}, []string{"phase", "outcome"}),
		traceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trace",
			Name:      "events_total",
			Help:      "Diagnostic trace events by kind.",
		}, []string{"kind"}),
		traceDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trace",
			Name:      "journal_dropped_total",
			Help:      "Trace events not journaled because the journal queue was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.rpcCalls, m.rpcDuration, m.uploadPhase, m.uploads, m.traceEvents, m.traceDrops)
	}
	return m
}

// ObserveRPC records one RPC invocation.
func (m *Metrics) ObserveRPC(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	label := m.endpointLabel(endpoint)
	m.rpcCalls.WithLabelValues(label, outcome).Inc()
	m.rpcDuration.WithLabelValues(label).Observe(d.Seconds())
}

// endpointLabel returns endpoint if it has the /<Service>/<action> shape and
// fits under MaxEndpoints, OtherEndpoint otherwise.
func (m *Metrics) endpointLabel(endpoint string) string {
	if !endpointPattern.MatchString(endpoint) {
		return OtherEndpoint
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.endpoints[endpoint]; ok {
		return endpoint
	}
	if len(m.endpoints) >= MaxEndpoints {
		return OtherEndpoint
	}
	m.endpoints[endpoint] = struct{}{}
	return endpoint
}

// ObservePhase records the duration of one upload phase.
func (m *Metrics) ObservePhase(phase, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.uploadPhase.WithLabelValues(phase, outcome).Observe(d.Seconds())
}

// ObserveUpload records the end of an upload run.
func (m *Metrics) ObserveUpload(phase, outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(phase, outcome).Inc()
}

// ObserveTraceEvent counts a diagnostic trace event.
func (m *Metrics) ObserveTraceEvent(kind string) {
	if m == nil {
		return
	}
	m.traceEvents.WithLabelValues(kind).Inc()
}

// ObserveTraceDrop counts a trace event the journal never received.
func (m *Metrics) ObserveTraceDrop() {
	if m == nil {
		return
	}
	m.traceDrops.Inc()
}
