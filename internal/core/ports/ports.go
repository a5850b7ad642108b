// Package ports declares the seams between the gateway core and its adapters.
package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
)

// Payload is the JSON object sent as an RPC request body.
type Payload = map[string]any

// Invoker performs one RPC exchange against the backend.
// Implementations: rpc.Client (default).
type Invoker interface {
	Invoke(ctx context.Context, endpoint string, payload Payload) (json.RawMessage, error)
}

// TraceRecorder receives diagnostic trace events.
// Implementations: trace.Trace.
type TraceRecorder interface {
	Record(event domain.TraceEvent)
}

// TraceJournal durably stores every trace event, including those evicted
// from the in-memory window.
// Implementations: journal.Store (sqlite, postgres).
type TraceJournal interface {
	Append(ctx context.Context, event domain.TraceEvent) error
	Recent(ctx context.Context, limit int) ([]domain.TraceEvent, error)
	Close() error
}

// ObjectUploader writes raw bytes to a delegated URL.
// Implementations: upload.HTTPUploader.
type ObjectUploader interface {
	Put(ctx context.Context, url string, body []byte) error
}

// Presigner issues delegated URLs for direct writes to object storage.
// Implementations: presign.Presigner.
type Presigner interface {
	PresignPut(ctx context.Context, bucket, key, contentType string, expires time.Duration) (string, error)
}
