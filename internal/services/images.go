package services

import (
	"context"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
	"github.com/tjfontaine/memories-gateway/internal/core/ports"
	"github.com/tjfontaine/memories-gateway/internal/rpc"
	"github.com/tjfontaine/memories-gateway/internal/upload"
)

// ImageService covers the ImageStorage backend concept. Upload runs the whole
// delegated-URL protocol; the two RPC steps are also exposed individually.
type ImageService struct {
	rpc          ports.Invoker
	orchestrator *upload.Orchestrator
}

func NewImageService(inv ports.Invoker, orchestrator *upload.Orchestrator) *ImageService {
	return &ImageService{rpc: inv, orchestrator: orchestrator}
}

// RequestUploadURL asks for a delegated URL. Optional fields left empty are omitted.
func (s *ImageService) RequestUploadURL(ctx context.Context, req domain.UploadURLRequest) (domain.UploadURLResponse, error) {
	payload := ports.Payload{"user": req.User, "imageName": req.ImageName}
	if req.Memory != "" {
		payload["memory"] = req.Memory
	}
	if req.ContentType != "" {
		payload["contentType"] = req.ContentType
	}
	if req.ExpiresInSeconds > 0 {
		payload["expiresInSeconds"] = req.ExpiresInSeconds
	}
	return rpc.Action[domain.UploadURLResponse](ctx, s.rpc, upload.EndpointRequestUploadURL, payload)
}

// ConfirmUpload records a transferred object with the backend.
func (s *ImageService) ConfirmUpload(ctx context.Context, req domain.ConfirmUploadRequest) (domain.ConfirmUploadResponse, error) {
	payload := ports.Payload{"user": req.User, "object": req.Object}
	if req.ContentType != "" {
		payload["contentType"] = req.ContentType
	}
	if req.Size > 0 {
		payload["size"] = req.Size
	}
	if req.Memory != "" {
		payload["memory"] = req.Memory
	}
	return rpc.Action[domain.ConfirmUploadResponse](ctx, s.rpc, upload.EndpointConfirmUpload, payload)
}

// Upload runs the full three-phase upload.
func (s *ImageService) Upload(ctx context.Context, req upload.Request) (*domain.UploadedImage, error) {
	return s.orchestrator.Upload(ctx, req)
}
