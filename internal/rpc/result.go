package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
	"github.com/tjfontaine/memories-gateway/internal/core/ports"
)

// ErrEmptyResult is the cause of the backend error returned when a query
// answers with an empty array.
var ErrEmptyResult = errors.New("empty query result")

// Action invokes a state-changing endpoint and decodes its object result.
func Action[T any](ctx context.Context, inv ports.Invoker, endpoint string, payload ports.Payload) (T, error) {
	var zero T
	raw, err := inv.Invoke(ctx, endpoint, payload)
	if err != nil {
		return zero, err
	}
	return DecodeAction[T](endpoint, raw)
}

// Query invokes a read-only endpoint and decodes the first element of its
// array result.
func Query[T any](ctx context.Context, inv ports.Invoker, endpoint string, payload ports.Payload) (T, error) {
	var zero T
	raw, err := inv.Invoke(ctx, endpoint, payload)
	if err != nil {
		return zero, err
	}
	return DecodeQuery[T](endpoint, raw)
}

// DecodeAction decodes an action result object.
func DecodeAction[T any](endpoint string, raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, shapeError(endpoint, "object", err)
	}
	return out, nil
}

// DecodeQuery decodes a query result array and returns its first element.
func DecodeQuery[T any](endpoint string, raw json.RawMessage) (T, error) {
	var zero T
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return zero, shapeError(endpoint, "array", err)
	}
	if len(rows) == 0 {
		return zero, domain.NewBackendError(fmt.Sprintf("empty query result from %s", endpoint)).
			WithSource(endpoint).
			WithCause(ErrEmptyResult)
	}
	var out T
	if err := json.Unmarshal(rows[0], &out); err != nil {
		return zero, shapeError(endpoint, "array element", err)
	}
	return out, nil
}

func shapeError(endpoint, want string, err error) error {
	return domain.NewBackendError(fmt.Sprintf("unexpected result from %s: want %s: %v", endpoint, want, err)).
		WithSource(endpoint).
		WithCause(err)
}
