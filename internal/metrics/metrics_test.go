package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ObserveRPC(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRPC("/Groups/createGroup", OutcomeOK, 10*time.Millisecond)
	m.ObserveRPC("/Groups/createGroup", OutcomeOK, 10*time.Millisecond)
	m.ObserveRPC("/Groups/createGroup", OutcomeBackendError, time.Millisecond)

	if got := testutil.ToFloat64(m.rpcCalls.WithLabelValues("/Groups/createGroup", OutcomeOK)); got != 2 {
		t.Errorf("ok calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.rpcCalls.WithLabelValues("/Groups/createGroup", OutcomeBackendError)); got != 1 {
		t.Errorf("backend_error calls = %v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRPC("/x", OutcomeOK, time.Second)
	m.ObservePhase("transferring", OutcomeOK, time.Second)
	m.ObserveUpload("complete", OutcomeOK)
	m.ObserveTraceEvent("request")
}

func TestMetrics_TraceEvents(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveTraceEvent("error")

	if got := testutil.ToFloat64(m.traceEvents.WithLabelValues("error")); got != 1 {
		t.Errorf("error events = %v, want 1", got)
	}
}

func TestMetrics_EndpointLabel(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"/Groups/createGroup", "/Groups/createGroup"},
		{"/Groups/_listGroupsForUser", "/Groups/_listGroupsForUser"},
		{"/ImageStorage/requestUploadUrl", "/ImageStorage/requestUploadUrl"},
		{"Groups/createGroup", OtherEndpoint},
		{"/Groups/createGroup/extra", OtherEndpoint},
		{"/Groups/create?x=1", OtherEndpoint},
		{"/../../etc/passwd", OtherEndpoint},
		{"", OtherEndpoint},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			m := New(nil)
			if got := m.endpointLabel(tt.endpoint); got != tt.want {
				t.Errorf("endpointLabel(%q) = %q, want %q", tt.endpoint, got, tt.want)
			}
		})
	}
}

func TestMetrics_EndpointLabelsAreBounded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	for i := 0; i < MaxEndpoints+50; i++ {
		m.ObserveRPC(fmt.Sprintf("/Service/action%d", i), OutcomeOK, time.Millisecond)
	}
	m.ObserveRPC("/Service/action0", OutcomeOK, time.Millisecond)

	if n := testutil.CollectAndCount(m.rpcCalls); n != MaxEndpoints+1 {
		t.Errorf("rpc call series = %d, want %d", n, MaxEndpoints+1)
	}
	if got := testutil.ToFloat64(m.rpcCalls.WithLabelValues(OtherEndpoint, OutcomeOK)); got != 50 {
		t.Errorf("other calls = %v, want 50", got)
	}
	if got := testutil.ToFloat64(m.rpcCalls.WithLabelValues("/Service/action0", OutcomeOK)); got != 2 {
		t.Errorf("action0 calls = %v, want 2", got)
	}
}

func TestMetrics_ObserveTraceDrop(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveTraceDrop()
	m.ObserveTraceDrop()
	if got := testutil.ToFloat64(m.traceDrops); got != 2 {
		t.Errorf("dropped = %v, want 2", got)
	}
}
