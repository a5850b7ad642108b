package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
	"github.com/tjfontaine/memories-gateway/internal/core/ports"
)

// HTTPUploader writes raw bytes to a delegated URL with a single PUT.
//
// No Content-Type header is set; the delegated URL's signature commits to
// one and a conflicting header gets the transfer rejected.
type HTTPUploader struct {
	client *http.Client
}

var _ ports.ObjectUploader = (*HTTPUploader)(nil)

// NewHTTPUploader creates an uploader. A nil client uses http.DefaultClient.
func NewHTTPUploader(client *http.Client) *HTTPUploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPUploader{client: client}
}

// Put uploads body to url. Storage services do not follow the backend's
// {"error"} convention, so the response body is never inspected; a
// non-2xx status becomes an upload error carrying the status line.
func (u *HTTPUploader) Put(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return domain.NewNetworkError(fmt.Sprintf("failed to create upload request: %v", err)).
			WithSource(url).
			WithCause(err)
	}
	req.ContentLength = int64(len(body))

	resp, err := u.client.Do(req)
	if err != nil {
		return domain.NewNetworkError(err.Error()).WithSource(url).WithCause(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.NewUploadError(resp.StatusCode, statusText(resp)).WithSource(url)
	}
	return nil
}

// statusText returns the reason phrase of the response status line.
func statusText(resp *http.Response) string {
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode))); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
