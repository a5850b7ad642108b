package domain

import "time"

// TraceKind identifies which side of an exchange a trace event describes.
type TraceKind string

const (
	TraceKindRequest  TraceKind = "request"
	TraceKindResponse TraceKind = "response"
	TraceKindError    TraceKind = "error"
)

// UnknownURL is recorded when the intended URL of a failed call cannot be determined.
const UnknownURL = "unknown"

// TraceEvent is a single entry of the diagnostic trace. It is a value type and
// is never modified after creation.
type TraceEvent struct {
	Kind    TraceKind `json:"type"`
	Method  string    `json:"method,omitempty"`
	URL     string    `json:"url"`
	Status  *int      `json:"status"`
	Message string    `json:"message,omitempty"`

	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64 `json:"time"`
}

// HasStatus reports whether an HTTP status was recorded.
func (e TraceEvent) HasStatus() bool {
	return e.Status != nil
}

// StatusCode returns the recorded status or 0 when absent.
func (e TraceEvent) StatusCode() int {
	if e.Status == nil {
		return 0
	}
	return *e.Status
}

// Time returns the event timestamp as a time.Time.
func (e TraceEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// NewRequestEvent builds a request event.
func NewRequestEvent(method, url string, at time.Time) TraceEvent {
	return TraceEvent{Kind: TraceKindRequest, Method: method, URL: url, Timestamp: at.UnixMilli()}
}

// NewResponseEvent builds a response event carrying the actual HTTP status.
func NewResponseEvent(url string, status int, at time.Time) TraceEvent {
	return TraceEvent{Kind: TraceKindResponse, URL: url, Status: &status, Timestamp: at.UnixMilli()}
}

// NewErrorEvent builds an error event. A zero status is recorded as absent.
func NewErrorEvent(url string, status int, message string, at time.Time) TraceEvent {
	if url == "" {
		url = UnknownURL
	}
	ev := TraceEvent{Kind: TraceKindError, URL: url, Message: message, Timestamp: at.UnixMilli()}
	if status != 0 {
		ev.Status = &status
	}
	return ev
}
