// Package rpc implements the gateway to the backend's JSON-over-HTTP
// convention: POST <base>/<Service>/<action>, JSON in, JSON out, where a body
// of {"error": "..."} is a failure regardless of the HTTP status.
//
// Every invocation is exactly one network attempt. The client does not retry,
// deduplicate, or cancel; failures are normalized into *domain.Error and every
// exchange is recorded in the diagnostic trace, including failed ones.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
	"github.com/tjfontaine/memories-gateway/internal/core/ports"
	"github.com/tjfontaine/memories-gateway/internal/metrics"
	"github.com/tjfontaine/memories-gateway/internal/pkg/config"
)

const tracerName = "github.com/tjfontaine/memories-gateway/internal/rpc"

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets the backend base address. An empty value keeps the default.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTransport sets the transport strategy used to reach the backend.
// See NewHTTPTransport and fixture.NewTransport.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithCredentials toggles cookie forwarding. When enabled, cookies set by the
// backend are kept in a jar and sent on later calls.
func WithCredentials(enabled bool) ClientOption {
	return func(c *Client) {
		c.credentials = enabled
	}
}

// WithMethod overrides the transport verb (POST by default).
func WithMethod(method string) ClientOption {
	return func(c *Client) {
		if method != "" {
			c.method = strings.ToUpper(method)
		}
	}
}

// WithTimeout bounds each exchange at the HTTP client level. Zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithTrace sets the recorder receiving request/response/error events.
func WithTrace(rec ports.TraceRecorder) ClientOption {
	return func(c *Client) {
		c.trace = rec
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClock overrides the time source used for trace timestamps.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// Client invokes backend operations.
type Client struct {
	baseURL     string
	method      string
	credentials bool
	timeout     time.Duration
	httpClient  *http.Client
	transport   http.RoundTripper

	trace   ports.TraceRecorder
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

var _ ports.Invoker = (*Client)(nil)

// NewClient creates a new RPC client.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimSuffix(config.DefaultBaseURL, "/"),
		method:  http.MethodPost,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	httpClient, err := c.buildHTTPClient()
	if err != nil {
		return nil, err
	}
	c.httpClient = httpClient

	c.logger.Debug("rpc client configured",
		slog.String("base_url", c.baseURL),
		slog.String("method", c.method),
		slog.Bool("with_credentials", c.credentials))

	return c, nil
}

func (c *Client) buildHTTPClient() (*http.Client, error) {
	var hc http.Client
	if c.httpClient != nil {
		hc = *c.httpClient
	}
	if c.transport != nil {
		hc.Transport = c.transport
	}
	if hc.Transport == nil {
		hc.Transport = NewHTTPTransport(nil)
	}
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}

	switch {
	case c.credentials && hc.Jar == nil:
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		hc.Jar = jar
	case !c.credentials:
		hc.Jar = nil
	}
	return &hc, nil
}

// BaseURL returns the configured base address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL joins the base address and an endpoint path.
func (c *Client) URL(endpoint string) string {
	return JoinURL(c.baseURL, endpoint)
}

// JoinURL concatenates base and endpoint with exactly one slash between them.
func JoinURL(base, endpoint string) string {
	base = strings.TrimRight(base, "/")
	if endpoint == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}

// Invoke sends payload to endpoint and returns the decoded body unchanged:
// an object for actions, an array whose first element is the result for
// queries. Failures are returned as *domain.Error.
func (c *Client) Invoke(ctx context.Context, endpoint string, payload ports.Payload) (json.RawMessage, error) {
	url := c.URL(endpoint)
	start := c.now()

	ctx, span := c.tracer.Start(ctx, "rpc.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.endpoint", endpoint),
			attribute.String("http.request.method", c.method),
		))
	defer span.End()

	c.record(domain.NewRequestEvent(c.method, url, start))

	if payload == nil {
		payload = ports.Payload{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, c.fail(span, endpoint, url, start, 0, "", fmt.Sprintf("failed to marshal request: %v", err), err)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, url, bytes.NewReader(body))
	if err != nil {
		return nil, c.fail(span, endpoint, domain.UnknownURL, start, 0, "", err.Error(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(span, endpoint, url, start, 0, "", err.Error(), err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(span, endpoint, url, start, resp.StatusCode, "", fmt.Sprintf("failed to read response: %v", err), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		transportMsg := fmt.Sprintf("request failed with status code %d", resp.StatusCode)
		return nil, c.fail(span, endpoint, url, start, resp.StatusCode, bodyError(respBody), transportMsg, nil)
	}

	c.record(domain.NewResponseEvent(url, resp.StatusCode, c.now()))

	if msg := bodyError(respBody); msg != "" {
		err := domain.NewBackendError(msg).WithStatus(resp.StatusCode).WithSource(url)
		c.finish(span, endpoint, start, metrics.OutcomeBackendError, err)
		return nil, err
	}

	result := json.RawMessage(bytes.TrimSpace(respBody))
	if len(result) == 0 {
		result = json.RawMessage("null")
	} else if !json.Valid(result) {
		err := domain.NewBackendError("invalid JSON in response body").WithStatus(resp.StatusCode).WithSource(url)
		c.finish(span, endpoint, start, metrics.OutcomeBackendError, err)
		return nil, err
	}

	c.finish(span, endpoint, start, metrics.OutcomeOK, nil)
	return result, nil
}

// fail records an error event carrying the transport-level message and
// returns the normalized error chosen by domain.ResolveFailure.
func (c *Client) fail(span trace.Span, endpoint, url string, start time.Time, status int, bodyErr, transportMsg string, cause error) error {
	c.record(domain.NewErrorEvent(url, status, transportMsg, c.now()))

	kind, msg := domain.ResolveFailure(bodyErr, transportMsg)
	err := domain.NewError(kind, msg).WithStatus(status).WithSource(url).WithCause(cause)

	outcome := metrics.OutcomeNetworkError
	if kind == domain.ErrorKindBackend {
		outcome = metrics.OutcomeBackendError
	}
	c.finish(span, endpoint, start, outcome, err)
	return err
}

func (c *Client) finish(span trace.Span, endpoint string, start time.Time, outcome string, err error) {
	duration := c.now().Sub(start)
	c.metrics.ObserveRPC(endpoint, outcome, duration)

	if err == nil {
		span.SetStatus(codes.Ok, "")
		c.logger.Debug("rpc call completed",
			slog.String("endpoint", endpoint),
			slog.Duration("duration", duration))
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Warn("rpc call failed",
		slog.String("endpoint", endpoint),
		slog.String("outcome", outcome),
		slog.String("error", err.Error()),
		slog.String("base_url", c.baseURL))
}

func (c *Client) record(ev domain.TraceEvent) {
	if c.trace != nil {
		c.trace.Record(ev)
	}
}

// bodyError extracts the backend's error message from a JSON object body.
// Absent, null, false, zero and empty-string values do not count as errors.
func bodyError(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return ""
	}
	raw, ok := envelope["error"]
	if !ok {
		return ""
	}
	switch v := strings.TrimSpace(string(raw)); v {
	case "null", "false", "0", `""`:
		return ""
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg
	}
	return string(raw)
}
