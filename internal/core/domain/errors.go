package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the category of a normalized gateway failure.
type ErrorKind string

const (
	// ErrorKindNetwork indicates the transport failed to complete the exchange
	// (DNS, connection refused, timeout, or a failure status without a body error).
	ErrorKindNetwork ErrorKind = "network_error"

	// ErrorKindBackend indicates the backend answered with an {"error": "..."} body.
	ErrorKindBackend ErrorKind = "backend_error"

	// ErrorKindUpload indicates the raw storage transfer returned a non-success status.
	ErrorKindUpload ErrorKind = "upload_error"
)

// UnknownErrorMessage is used when neither the body nor the transport produced a message.
const UnknownErrorMessage = "Unknown Error"

// Error is the normalized failure returned by the RPC gateway and the upload
// orchestrator. Error() yields Message verbatim so callers can present it directly.
type Error struct {
	// Kind is the category of error
	Kind ErrorKind `json:"kind"`

	// Message is the normalized, user-presentable message
	Message string `json:"message"`

	// Status is the HTTP status if one was received, 0 otherwise
	Status int `json:"status,omitempty"`

	// Source is the URL or endpoint the failure relates to
	Source string `json:"source,omitempty"`

	// Err is the underlying transport error, if any
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the transport-level cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// HasStatus reports whether an HTTP status was received.
func (e *Error) HasStatus() bool {
	return e.Status != 0
}

// NewError creates a new normalized error.
func NewError(kind ErrorKind, message string) *Error {
	if message == "" {
		message = UnknownErrorMessage
	}
	return &Error{Kind: kind, Message: message}
}

// WithStatus sets the received HTTP status.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// WithSource sets the URL or endpoint the error relates to.
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// NewNetworkError creates a network error.
func NewNetworkError(message string) *Error {
	return NewError(ErrorKindNetwork, message)
}

// NewBackendError creates a backend error.
func NewBackendError(message string) *Error {
	return NewError(ErrorKindBackend, message)
}

// NewUploadError creates an upload error from the storage response status line.
func NewUploadError(status int, statusText string) *Error {
	return NewError(ErrorKindUpload, fmt.Sprintf("upload failed: %d %s", status, statusText)).
		WithStatus(status)
}

// ResolveFailure applies the failure message precedence: a decoded body error
// wins over the transport message, which wins over UnknownErrorMessage.
func ResolveFailure(bodyError, transportMessage string) (ErrorKind, string) {
	switch {
	case bodyError != "":
		return ErrorKindBackend, bodyError
	case transportMessage != "":
		return ErrorKindNetwork, transportMessage
	default:
		return ErrorKindNetwork, UnknownErrorMessage
	}
}

// KindOf returns the kind of a normalized error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a normalized error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
