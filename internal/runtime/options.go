package runtime

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tjfontaine/memories-gateway/internal/core/ports"
	"github.com/tjfontaine/memories-gateway/internal/fixture"
	"github.com/tjfontaine/memories-gateway/internal/pkg/config"
)

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(c *Client) error {
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		c.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file and the environment.
func WithConfigFile(path string) Option {
	return func(c *Client) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		c.cfg = cfg
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(c *Client) error {
		c.registry = reg
		return nil
	}
}

// WithJournal uses a custom trace journal. The client closes it on Close.
func WithJournal(j ports.TraceJournal) Option {
	return func(c *Client) error {
		c.journal = j
		return nil
	}
}

// WithTransport overrides the transport chosen by api.transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) error {
		c.transport = rt
		return nil
	}
}

// WithFixtureBackend routes all traffic, uploads included, to b in-process.
func WithFixtureBackend(b *fixture.Backend) Option {
	return func(c *Client) error {
		c.backend = b
		c.transport = fixture.NewTransport(b)
		return nil
	}
}
