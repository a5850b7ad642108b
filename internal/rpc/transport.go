package rpc

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPTransport returns the network transport used against a real backend.
// base defaults to a clone of http.DefaultTransport; requests are traced with
// OpenTelemetry.
func NewHTTPTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	return otelhttp.NewTransport(base)
}
