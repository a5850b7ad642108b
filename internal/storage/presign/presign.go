// Package presign issues delegated upload URLs for S3-compatible storage.
package presign

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tjfontaine/memories-gateway/internal/core/ports"
	"github.com/tjfontaine/memories-gateway/internal/pkg/config"
)

// Presigner signs PUT URLs. Signing is local; no request reaches storage.
type Presigner struct {
	client *s3.PresignClient
}

var _ ports.Presigner = (*Presigner)(nil)

// New builds a presigner for the configured endpoint.
func New(cfg config.StorageConfig) (*Presigner, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	client := s3.NewFromConfig(aws.Config{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	return &Presigner{client: s3.NewPresignClient(client)}, nil
}

// PresignPut returns a URL allowing one PUT of bucket/key until expires
// elapses. A non-empty contentType becomes part of the signature, and the
// upload must then send exactly that header.
func (p *Presigner) PresignPut(ctx context.Context, bucket, key, contentType string, expires time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	req, err := p.client.PresignPutObject(ctx, input, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("presign put %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}
