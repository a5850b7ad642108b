// Package upload drives the three-phase image upload protocol:
//
//	RequestingURL -> Transferring -> Confirming -> Complete
//
// Phase one asks the backend for a delegated URL, phase two PUTs the bytes
// straight to storage, and phase three confirms the object with the backend.
// Phases run strictly in order and none is retried. A failure stops the run
// and is returned unchanged; nothing is compensated, so an object whose
// transfer succeeded but whose confirmation failed is left orphaned in
// storage. Callers that want to retry start over from phase one.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
	"github.com/tjfontaine/memories-gateway/internal/core/ports"
	"github.com/tjfontaine/memories-gateway/internal/metrics"
	"github.com/tjfontaine/memories-gateway/internal/rpc"
)

const tracerName = "github.com/tjfontaine/memories-gateway/internal/upload"

// Backend endpoints used by the orchestrator.
const (
	EndpointRequestUploadURL = "/ImageStorage/requestUploadUrl"
	EndpointConfirmUpload    = "/ImageStorage/confirmUpload"
)

// Request describes one file to upload.
type Request struct {
	Owner       domain.ID
	FileName    string
	Body        []byte
	ContentType string

	// Memory optionally associates the image with a memory entry.
	Memory domain.ID

	// ExpiresIn optionally bounds the delegated URL lifetime.
	ExpiresIn time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithPhaseHook registers a callback invoked on every phase transition.
func WithPhaseHook(hook func(domain.UploadPhase)) Option {
	return func(o *Orchestrator) {
		o.hooks = append(o.hooks, hook)
	}
}

// WithContentTypeOnRequest sends the content type in the delegated URL
// request as well. Off by default. Confirmation always carries it.
func WithContentTypeOnRequest(enabled bool) Option {
	return func(o *Orchestrator) {
		o.contentTypeOnRequest = enabled
	}
}

// WithDefaultExpiry sets the delegated URL lifetime used when a Request
// does not specify one.
func WithDefaultExpiry(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.defaultExpiry = d
	}
}

// Orchestrator runs upload sessions. It is stateless between runs and safe
// for concurrent use.
type Orchestrator struct {
	rpc      ports.Invoker
	uploader ports.ObjectUploader

	contentTypeOnRequest bool
	defaultExpiry        time.Duration

	hooks   []func(domain.UploadPhase)
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// New creates an orchestrator using inv for phases one and three and
// uploader for phase two.
func New(inv ports.Invoker, uploader ports.ObjectUploader, opts ...Option) (*Orchestrator, error) {
	if inv == nil {
		return nil, fmt.Errorf("rpc invoker required")
	}
	if uploader == nil {
		return nil, fmt.Errorf("object uploader required")
	}
	o := &Orchestrator{
		rpc:      inv,
		uploader: uploader,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// run is the per-call state of one upload.
type run struct {
	o       *Orchestrator
	session domain.UploadSession
	phase   domain.UploadPhase
	logger  *slog.Logger
}

// Upload executes the full protocol for req and returns the durable image
// reference. The first error encountered is returned unchanged.
func (o *Orchestrator) Upload(ctx context.Context, req Request) (*domain.UploadedImage, error) {
	if req.Owner == "" {
		return nil, fmt.Errorf("upload owner required")
	}
	if req.FileName == "" {
		return nil, fmt.Errorf("upload file name required")
	}

	ctx, span := o.tracer.Start(ctx, "upload.run",
		trace.WithAttributes(
			attribute.String("upload.file_name", req.FileName),
			attribute.Int("upload.size_bytes", len(req.Body)),
		))
	defer span.End()

	r := &run{
		o: o,
		session: domain.UploadSession{
			Owner:       req.Owner,
			ContentType: req.ContentType,
			SizeBytes:   int64(len(req.Body)),
			Memory:      req.Memory,
		},
		phase:  domain.UploadPhaseIdle,
		logger: o.logger.With(slog.String("owner", req.Owner), slog.String("file_name", req.FileName)),
	}

	image, err := r.execute(ctx, req)
	if err != nil {
		failedIn := r.phase
		r.transition(domain.UploadPhaseFailed)
		o.metrics.ObserveUpload(string(failedIn), outcomeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("upload failed",
			slog.String("phase", string(failedIn)),
			slog.String("error", err.Error()))
		return nil, err
	}

	o.metrics.ObserveUpload(string(domain.UploadPhaseComplete), metrics.OutcomeOK)
	span.SetStatus(codes.Ok, "")
	return image, nil
}

func (r *run) execute(ctx context.Context, req Request) (*domain.UploadedImage, error) {
	if err := r.step(ctx, domain.UploadPhaseRequestingURL, func(ctx context.Context) error {
		return r.requestURL(ctx, req)
	}); err != nil {
		return nil, err
	}

	if err := r.step(ctx, domain.UploadPhaseTransferring, func(ctx context.Context) error {
		return r.o.uploader.Put(ctx, r.session.DelegatedURL, req.Body)
	}); err != nil {
		return nil, err
	}

	var image *domain.UploadedImage
	if err := r.step(ctx, domain.UploadPhaseConfirming, func(ctx context.Context) error {
		var err error
		image, err = r.confirm(ctx)
		return err
	}); err != nil {
		// The bytes are in storage with no backend record.
		r.logger.Warn("upload left an orphaned object",
			slog.String("bucket", r.session.Bucket),
			slog.String("object", r.session.ObjectKey))
		return nil, err
	}

	r.transition(domain.UploadPhaseComplete)
	r.logger.Info("upload complete",
		slog.String("image", image.ImageID),
		slog.String("object", image.ObjectKey))
	return image, nil
}

// step runs one phase inside its own span and records its duration.
func (r *run) step(ctx context.Context, phase domain.UploadPhase, fn func(context.Context) error) error {
	r.transition(phase)

	ctx, span := r.o.tracer.Start(ctx, "upload."+string(phase))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = outcomeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	r.o.metrics.ObservePhase(string(phase), outcome, time.Since(start))
	return err
}

func (r *run) transition(phase domain.UploadPhase) {
	r.logger.Debug("upload phase", slog.String("from", string(r.phase)), slog.String("to", string(phase)))
	r.phase = phase
	for _, hook := range r.o.hooks {
		hook(phase)
	}
}

func (r *run) requestURL(ctx context.Context, req Request) error {
	payload := ports.Payload{
		"user":      req.Owner,
		"imageName": req.FileName,
	}
	if req.Memory != "" {
		payload["memory"] = req.Memory
	}
	if r.o.contentTypeOnRequest && req.ContentType != "" {
		payload["contentType"] = req.ContentType
	}
	expires := req.ExpiresIn
	if expires == 0 {
		expires = r.o.defaultExpiry
	}
	if secs := int64(expires / time.Second); secs > 0 {
		payload["expiresInSeconds"] = secs
	}

	resp, err := rpc.Action[domain.UploadURLResponse](ctx, r.o.rpc, EndpointRequestUploadURL, payload)
	if err != nil {
		return err
	}
	if resp.UploadURL == "" || resp.Object == "" {
		return domain.NewBackendError("upload url response missing uploadUrl or object").
			WithSource(EndpointRequestUploadURL)
	}

	r.session.DelegatedURL = resp.UploadURL
	r.session.Bucket = resp.Bucket
	r.session.ObjectKey = resp.Object
	return nil
}

func (r *run) confirm(ctx context.Context) (*domain.UploadedImage, error) {
	payload := ports.Payload{
		"user":   r.session.Owner,
		"object": r.session.ObjectKey,
	}
	if r.session.ContentType != "" {
		payload["contentType"] = r.session.ContentType
	}
	if r.session.SizeBytes > 0 {
		payload["size"] = r.session.SizeBytes
	}
	if r.session.Memory != "" {
		payload["memory"] = r.session.Memory
	}

	resp, err := rpc.Action[domain.ConfirmUploadResponse](ctx, r.o.rpc, EndpointConfirmUpload, payload)
	if err != nil {
		return nil, err
	}
	if resp.Image == "" {
		return nil, domain.NewBackendError("confirm response missing image").WithSource(EndpointConfirmUpload)
	}

	return &domain.UploadedImage{
		ImageID:      resp.Image,
		PermanentURL: resp.URL,
		ObjectKey:    r.session.ObjectKey,
	}, nil
}

func outcomeOf(err error) string {
	switch domain.KindOf(err) {
	case domain.ErrorKindBackend:
		return metrics.OutcomeBackendError
	case domain.ErrorKindUpload:
		return metrics.OutcomeUploadError
	default:
		return metrics.OutcomeNetworkError
	}
}
