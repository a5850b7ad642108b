// Package runtime wires configuration, transport, trace, journal, metrics
// and the domain services into a ready-to-use Client.
package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
	"github.com/tjfontaine/memories-gateway/internal/core/ports"
	"github.com/tjfontaine/memories-gateway/internal/fixture"
	"github.com/tjfontaine/memories-gateway/internal/metrics"
	"github.com/tjfontaine/memories-gateway/internal/pkg/config"
	"github.com/tjfontaine/memories-gateway/internal/pkg/safehttp"
	"github.com/tjfontaine/memories-gateway/internal/rpc"
	"github.com/tjfontaine/memories-gateway/internal/server"
	"github.com/tjfontaine/memories-gateway/internal/services"
	"github.com/tjfontaine/memories-gateway/internal/storage/journal"
	"github.com/tjfontaine/memories-gateway/internal/storage/presign"
	"github.com/tjfontaine/memories-gateway/internal/trace"
	"github.com/tjfontaine/memories-gateway/internal/upload"
)

// Client is the assembled gateway.
type Client struct {
	Auth     *services.AuthService
	Groups   *services.GroupService
	Memories *services.MemoryService
	Images   *services.ImageService

	RPC     *rpc.Client
	Uploads *upload.Orchestrator
	Trace   *trace.Trace

	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	journal   ports.TraceJournal
	transport http.RoundTripper
	backend   *fixture.Backend
}

// New assembles a Client. Without WithConfig or WithConfigFile the
// configuration is loaded from config.yaml and the environment.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if c.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		c.cfg = cfg
	}
	if c.registry == nil {
		c.registry = prometheus.NewRegistry()
	}
	c.metrics = metrics.New(c.registry)

	if err := c.initJournal(); err != nil {
		return nil, err
	}
	c.initTrace()

	if err := c.initTransport(); err != nil {
		c.Close()
		return nil, err
	}

	if err := c.initClients(); err != nil {
		c.Close()
		return nil, err
	}

	c.logger.Info("memories gateway ready",
		slog.String("base_url", c.RPC.BaseURL()),
		slog.String("transport", c.cfg.API.Transport),
		slog.Bool("journal", c.journal != nil))
	return c, nil
}

func (c *Client) initJournal() error {
	if c.journal != nil || c.cfg.Journal.Driver == "" {
		return nil
	}
	store, err := journal.Open(journal.Config{Driver: c.cfg.Journal.Driver, DSN: c.cfg.Journal.DSN})
	if err != nil {
		return fmt.Errorf("open trace journal: %w", err)
	}
	c.journal = store
	return nil
}

func (c *Client) initTrace() {
	opts := []trace.Option{trace.WithLogger(c.logger)}
	if c.journal != nil {
		opts = append(opts,
			trace.WithJournal(c.journal),
			trace.WithJournalQueueSize(c.cfg.Journal.QueueSize),
			trace.WithDropHook(c.metrics.ObserveTraceDrop))
	}
	c.Trace = trace.New(opts...)
	c.Trace.OnChange(func(events []domain.TraceEvent) {
		if len(events) > 0 {
			c.metrics.ObserveTraceEvent(string(events[len(events)-1].Kind))
		}
	})
}

func (c *Client) initTransport() error {
	if c.transport != nil {
		return nil
	}
	switch c.cfg.API.Transport {
	case config.TransportFixture:
		b, err := c.newFixtureBackend()
		if err != nil {
			return err
		}
		c.backend = b
		c.transport = fixture.NewTransport(b)
	default:
		c.transport = rpc.NewHTTPTransport(nil)
	}
	return nil
}

func (c *Client) newFixtureBackend() (*fixture.Backend, error) {
	opts := []fixture.Option{fixture.WithLogger(c.logger)}

	if u, err := url.Parse(c.cfg.API.BaseURL); err == nil {
		opts = append(opts, fixture.WithAPIPrefix(u.Path))
	}
	if c.cfg.API.FixturesFile != "" {
		overrides, err := fixture.LoadOverrides(c.cfg.API.FixturesFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fixture.WithOverrides(overrides))
	}
	if c.cfg.Storage.Enabled() {
		p, err := presign.New(c.cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("create presigner: %w", err)
		}
		opts = append(opts, fixture.WithPresigner(p, c.cfg.Storage.Bucket))
	}
	return fixture.New(opts...), nil
}

func (c *Client) initClients() error {
	rpcClient, err := rpc.NewClient(
		rpc.WithBaseURL(c.cfg.API.BaseURL),
		rpc.WithCredentials(c.cfg.API.WithCredentials),
		rpc.WithMethod(c.cfg.API.Method),
		rpc.WithTimeout(c.cfg.API.Timeout),
		rpc.WithTransport(c.transport),
		rpc.WithTrace(c.Trace),
		rpc.WithLogger(c.logger),
		rpc.WithMetrics(c.metrics),
	)
	if err != nil {
		return fmt.Errorf("create rpc client: %w", err)
	}
	c.RPC = rpcClient

	// Storage PUTs never carry the backend's cookie jar.
	uploader := upload.NewHTTPUploader(&http.Client{
		Transport: c.uploadTransport(),
		Timeout:   c.cfg.API.Timeout,
	})
	orchestrator, err := upload.New(rpcClient, uploader,
		upload.WithLogger(c.logger),
		upload.WithMetrics(c.metrics),
		upload.WithContentTypeOnRequest(c.cfg.Upload.ContentTypeOnRequest),
		upload.WithDefaultExpiry(c.cfg.Upload.ExpiresIn),
	)
	if err != nil {
		return fmt.Errorf("create upload orchestrator: %w", err)
	}
	c.Uploads = orchestrator

	c.Auth = services.NewAuthService(rpcClient)
	c.Groups = services.NewGroupService(rpcClient)
	c.Memories = services.NewMemoryService(rpcClient)
	c.Images = services.NewImageService(rpcClient, orchestrator)
	return nil
}

// uploadTransport reaches delegated URLs. Over real networks it can be
// restricted to public addresses since the backend chooses the target.
func (c *Client) uploadTransport() http.RoundTripper {
	if c.backend == nil && c.cfg.Upload.DenyPrivateTargets {
		return rpc.NewHTTPTransport(safehttp.NewTransport())
	}
	return c.transport
}

// Config returns the effective configuration.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Registry returns the Prometheus registry holding the client's metrics.
func (c *Client) Registry() *prometheus.Registry {
	return c.registry
}

// Journal returns the trace journal, or nil when none is configured.
func (c *Client) Journal() ports.TraceJournal {
	return c.journal
}

// Backend returns the in-process fixture backend, or nil for real transports.
func (c *Client) Backend() *fixture.Backend {
	return c.backend
}

// DebugServer builds the debug panel for this client's trace.
func (c *Client) DebugServer() *server.Server {
	opts := []server.Option{
		server.WithGatherer(c.registry),
		server.WithRateLimit(c.cfg.Debug.RateLimit),
	}
	if c.journal != nil {
		opts = append(opts, server.WithHistory(c.journal))
	}
	return server.New(c.cfg.Debug.Listen, c.Trace, c.logger, opts...)
}

// Close drains queued trace events into the journal and releases it.
func (c *Client) Close() error {
	var errs []error
	if c.Trace != nil {
		if err := c.Trace.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trace: %w", err))
		}
	}
	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	return errors.Join(errs...)
}
