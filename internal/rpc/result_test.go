package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
	"github.com/tjfontaine/memories-gateway/internal/core/ports"
)

type stubInvoker struct {
	raw string
	err error

	endpoint string
	payload  ports.Payload
}

func (s *stubInvoker) Invoke(ctx context.Context, endpoint string, payload ports.Payload) (json.RawMessage, error) {
	s.endpoint = endpoint
	s.payload = payload
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(s.raw), nil
}

func TestAction(t *testing.T) {
	inv := &stubInvoker{raw: `{"group":"g1"}`}
	got, err := Action[struct {
		Group string `json:"group"`
	}](context.Background(), inv, "/Groups/createGroup", ports.Payload{"user": "u1"})
	if err != nil {
		t.Fatalf("Action() error = %v", err)
	}
	if got.Group != "g1" {
		t.Errorf("Group = %q, want g1", got.Group)
	}
	if inv.endpoint != "/Groups/createGroup" {
		t.Errorf("endpoint = %q", inv.endpoint)
	}
}

func TestQuery(t *testing.T) {
	inv := &stubInvoker{raw: `[{"groups":["a","b"]},{"groups":["ignored"]}]`}
	got, err := Query[struct {
		Groups []string `json:"groups"`
	}](context.Background(), inv, "/Groups/_listGroupsForUser", nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got.Groups) != 2 || got.Groups[0] != "a" {
		t.Errorf("Groups = %v", got.Groups)
	}
}

func TestQuery_EmptyArray(t *testing.T) {
	_, err := Query[map[string]any](context.Background(), &stubInvoker{raw: `[]`}, "/S/_q", nil)
	if !domain.IsKind(err, domain.ErrorKindBackend) {
		t.Errorf("error = %v, want backend_error", err)
	}
	if !errors.Is(err, ErrEmptyResult) {
		t.Errorf("error = %v, want ErrEmptyResult cause", err)
	}
}

func TestQuery_ObjectIsShapeError(t *testing.T) {
	_, err := Query[map[string]any](context.Background(), &stubInvoker{raw: `{"groups":[]}`}, "/S/_q", nil)
	if !domain.IsKind(err, domain.ErrorKindBackend) {
		t.Errorf("error = %v, want backend_error", err)
	}
}

func TestAction_PropagatesInvokeError(t *testing.T) {
	want := domain.NewNetworkError("boom")
	_, err := Action[map[string]any](context.Background(), &stubInvoker{err: want}, "/S/a", nil)
	if !errors.Is(err, want) {
		t.Errorf("error = %v, want %v", err, want)
	}
}

func TestAction_NullResult(t *testing.T) {
	got, err := Action[map[string]any](context.Background(), &stubInvoker{raw: `null`}, "/S/a", nil)
	if err != nil {
		t.Fatalf("Action() error = %v", err)
	}
	if got != nil {
		t.Errorf("result = %v, want nil map", got)
	}
}
