// Package client is the public API for embedding the memories gateway.
package client

import (
	"github.com/tjfontaine/memories-gateway/internal/core/domain"
	"github.com/tjfontaine/memories-gateway/internal/runtime"
	"github.com/tjfontaine/memories-gateway/internal/upload"
)

// Client bundles the domain services, the upload orchestrator and the
// diagnostic trace. See internal/runtime.Client.
type Client = runtime.Client

// Option is a functional option for configuring a Client.
type Option = runtime.Option

// New creates a Client.
//
//	c, err := client.New(client.WithConfigFile("config.yaml"))
//	user, err := c.Auth.Login(ctx, "alice", "secret")
var New = runtime.New

var (
	WithConfig         = runtime.WithConfig
	WithConfigFile     = runtime.WithConfigFile
	WithLogger         = runtime.WithLogger
	WithRegistry       = runtime.WithRegistry
	WithJournal        = runtime.WithJournal
	WithTransport      = runtime.WithTransport
	WithFixtureBackend = runtime.WithFixtureBackend
)

type (
	Error         = domain.Error
	ErrorKind     = domain.ErrorKind
	TraceEvent    = domain.TraceEvent
	UploadRequest = upload.Request
	UploadedImage = domain.UploadedImage
)

const (
	ErrorKindNetwork = domain.ErrorKindNetwork
	ErrorKindBackend = domain.ErrorKindBackend
	ErrorKindUpload  = domain.ErrorKindUpload
)
