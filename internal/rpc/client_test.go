package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
	"github.com/tjfontaine/memories-gateway/internal/core/ports"
	"github.com/tjfontaine/memories-gateway/internal/trace"
)

// eventLog keeps every recorded event, unlike the bounded trace.
type eventLog struct {
	mu     sync.Mutex
	events []domain.TraceEvent
}

func (l *eventLog) Record(ev domain.TraceEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []domain.TraceKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.TraceKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestClient(t *testing.T, baseURL string, opts ...ClientOption) (*Client, *eventLog) {
	t.Helper()
	log := &eventLog{}
	opts = append([]ClientOption{WithBaseURL(baseURL), WithTrace(log)}, opts...)
	c, err := NewClient(opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c, log
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base     string
		endpoint string
		want     string
	}{
		{"http://h/api", "/Groups/createGroup", "http://h/api/Groups/createGroup"},
		{"http://h/api/", "/Groups/createGroup", "http://h/api/Groups/createGroup"},
		{"http://h/api", "Groups/createGroup", "http://h/api/Groups/createGroup"},
		{"http://h/api//", "//Groups/createGroup", "http://h/api/Groups/createGroup"},
	}

	for _, tt := range tests {
		t.Run(tt.base+"+"+tt.endpoint, func(t *testing.T) {
			if got := JoinURL(tt.base, tt.endpoint); got != tt.want {
				t.Errorf("JoinURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewClient_DefaultBaseURL(t *testing.T) {
	c, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.BaseURL() != "http://localhost:8000/api" {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
}

func TestInvoke_TargetsExactURL(t *testing.T) {
	var gotURL string
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotURL = r.URL.String()
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"group":"g1"}`)),
			Header:     make(http.Header),
			Request:    r,
		}, nil
	})

	c, log := newTestClient(t, "http://h/api", WithTransport(rt))
	if _, err := c.Invoke(context.Background(), "/Groups/createGroup", ports.Payload{"user": "u1", "name": "n"}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if gotURL != "http://h/api/Groups/createGroup" {
		t.Errorf("request URL = %q, want http://h/api/Groups/createGroup", gotURL)
	}
	if log.events[0].URL != "http://h/api/Groups/createGroup" {
		t.Errorf("request event URL = %q", log.events[0].URL)
	}
}

func TestInvoke_RequestShape(t *testing.T) {
	var (
		method      string
		contentType string
		payload     map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&payload)
		io.WriteString(w, `{"user":"u1"}`)
	}))
	defer srv.Close()

	c, log := newTestClient(t, srv.URL+"/api")
	raw, err := c.Invoke(context.Background(), "/UserAuthentication/authenticate", ports.Payload{"username": "alice", "password": "pw"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if method != http.MethodPost {
		t.Errorf("method = %q, want POST", method)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}
	if payload["username"] != "alice" {
		t.Errorf("payload = %v", payload)
	}
	if string(raw) != `{"user":"u1"}` {
		t.Errorf("result = %s", raw)
	}

	kinds := log.kinds()
	if len(kinds) != 2 || kinds[0] != domain.TraceKindRequest || kinds[1] != domain.TraceKindResponse {
		t.Fatalf("events = %v, want [request response]", kinds)
	}
	if log.events[0].Method != "POST" {
		t.Errorf("request event method = %q, want POST", log.events[0].Method)
	}
	if log.events[1].StatusCode() != http.StatusOK {
		t.Errorf("response event status = %d, want 200", log.events[1].StatusCode())
	}
}

func TestInvoke_NilPayloadSendsEmptyObject(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	if _, err := c.Invoke(context.Background(), "/S/a", nil); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if body != "{}" {
		t.Errorf("body = %q, want {}", body)
	}
}

func TestInvoke_QueryArrayReturnedUnchanged(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(http.StatusOK, `[{"groups":["g1","g2"]}]`))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	raw, err := c.Invoke(context.Background(), "/Groups/_listGroupsForUser", ports.Payload{"user": "u1"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if string(raw) != `[{"groups":["g1","g2"]}]` {
		t.Errorf("result = %s", raw)
	}
}

func TestInvoke_ErrorFieldOnSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(http.StatusOK, `{"error": "bad username"}`))
	defer srv.Close()

	c, log := newTestClient(t, srv.URL)
	_, err := c.Invoke(context.Background(), "/UserAuthentication/authenticate", ports.Payload{"username": "x"})
	if err == nil {
		t.Fatal("Invoke() expected error")
	}

	if err.Error() != "bad username" {
		t.Errorf("error = %q, want %q", err.Error(), "bad username")
	}
	if !domain.IsKind(err, domain.ErrorKindBackend) {
		t.Errorf("kind = %q, want backend_error", domain.KindOf(err))
	}

	kinds := log.kinds()
	if len(kinds) != 2 || kinds[1] != domain.TraceKindResponse {
		t.Fatalf("events = %v, want [request response]", kinds)
	}
	if log.events[1].StatusCode() != http.StatusOK {
		t.Errorf("response event status = %d, want 200", log.events[1].StatusCode())
	}
}

func TestInvoke_FalsyErrorFieldIsSuccess(t *testing.T) {
	for _, body := range []string{`{"error": ""}`, `{"error": null}`, `{"error": false}`} {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(jsonHandler(http.StatusOK, body))
			defer srv.Close()

			c, _ := newTestClient(t, srv.URL)
			if _, err := c.Invoke(context.Background(), "/S/a", nil); err != nil {
				t.Errorf("Invoke() error = %v, want success", err)
			}
		})
	}
}

func TestInvoke_FailureStatusPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind domain.ErrorKind
		wantMsg  string
	}{
		{
			name:     "body error wins over status",
			status:   http.StatusBadRequest,
			body:     `{"error":"group name taken"}`,
			wantKind: domain.ErrorKindBackend,
			wantMsg:  "group name taken",
		},
		{
			name:     "transport message without body error",
			status:   http.StatusInternalServerError,
			body:     `<html>oops</html>`,
			wantKind: domain.ErrorKindNetwork,
			wantMsg:  "request failed with status code 500",
		},
		{
			name:     "empty body",
			status:   http.StatusNotFound,
			body:     ``,
			wantKind: domain.ErrorKindNetwork,
			wantMsg:  "request failed with status code 404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(jsonHandler(tt.status, tt.body))
			defer srv.Close()

			c, log := newTestClient(t, srv.URL)
			_, err := c.Invoke(context.Background(), "/Groups/createGroup", nil)

			var gerr *domain.Error
			if !errors.As(err, &gerr) {
				t.Fatalf("error = %v, want *domain.Error", err)
			}
			if gerr.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", gerr.Kind, tt.wantKind)
			}
			if gerr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", gerr.Message, tt.wantMsg)
			}
			if gerr.Status != tt.status {
				t.Errorf("Status = %d, want %d", gerr.Status, tt.status)
			}

			last := log.events[len(log.events)-1]
			if last.Kind != domain.TraceKindError {
				t.Fatalf("last event kind = %q, want error", last.Kind)
			}
			if last.StatusCode() != tt.status {
				t.Errorf("error event status = %d, want %d", last.StatusCode(), tt.status)
			}
		})
	}
}

func TestInvoke_TransportFailure(t *testing.T) {
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	c, log := newTestClient(t, "http://h/api", WithTransport(rt))
	_, err := c.Invoke(context.Background(), "/Groups/createGroup", nil)
	if err == nil {
		t.Fatal("Invoke() expected error")
	}

	if !domain.IsKind(err, domain.ErrorKindNetwork) {
		t.Errorf("kind = %q, want network_error", domain.KindOf(err))
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error = %q, want transport message", err.Error())
	}

	kinds := log.kinds()
	if len(kinds) != 2 || kinds[0] != domain.TraceKindRequest || kinds[1] != domain.TraceKindError {
		t.Fatalf("events = %v, want [request error]", kinds)
	}
	ev := log.events[1]
	if ev.HasStatus() {
		t.Errorf("error event status = %d, want absent", ev.StatusCode())
	}
	if ev.Message != err.Error() {
		t.Errorf("error event message = %q, want %q", ev.Message, err.Error())
	}
	if ev.URL != "http://h/api/Groups/createGroup" {
		t.Errorf("error event URL = %q", ev.URL)
	}
}

func TestInvoke_RepeatedFailuresAreIndependent(t *testing.T) {
	calls := 0
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("no route to host")
	})

	c, log := newTestClient(t, "http://h/api", WithTransport(rt))
	payload := ports.Payload{"user": "u1", "imageName": "a.png"}
	_, err1 := c.Invoke(context.Background(), "/ImageStorage/requestUploadUrl", payload)
	_, err2 := c.Invoke(context.Background(), "/ImageStorage/requestUploadUrl", payload)

	if err1 == nil || err2 == nil {
		t.Fatal("expected both calls to fail")
	}
	if err1 == err2 {
		t.Error("failures should be independent values")
	}
	if calls != 2 {
		t.Errorf("transport calls = %d, want 2", calls)
	}

	want := []domain.TraceKind{domain.TraceKindRequest, domain.TraceKindError, domain.TraceKindRequest, domain.TraceKindError}
	got := log.kinds()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestInvoke_InvalidJSONOnSuccess(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(http.StatusOK, `not json`))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	_, err := c.Invoke(context.Background(), "/S/a", nil)
	if !domain.IsKind(err, domain.ErrorKindBackend) {
		t.Errorf("error = %v, want backend_error", err)
	}
}

func TestInvoke_CustomMethod(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	c, log := newTestClient(t, srv.URL, WithMethod("put"))
	if _, err := c.Invoke(context.Background(), "/S/a", nil); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if method != http.MethodPut {
		t.Errorf("method = %q, want PUT", method)
	}
	if log.events[0].Method != "PUT" {
		t.Errorf("request event method = %q, want PUT", log.events[0].Method)
	}
}

func TestInvoke_Credentials(t *testing.T) {
	tests := []struct {
		name       string
		enabled    bool
		wantCookie bool
	}{
		{name: "forwarded when enabled", enabled: true, wantCookie: true},
		{name: "dropped when disabled", enabled: false, wantCookie: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sawCookie bool
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, err := r.Cookie("session"); err == nil {
					sawCookie = true
				}
				http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
				io.WriteString(w, `{}`)
			}))
			defer srv.Close()

			c, _ := newTestClient(t, srv.URL, WithCredentials(tt.enabled))
			for i := 0; i < 2; i++ {
				if _, err := c.Invoke(context.Background(), "/S/a", nil); err != nil {
					t.Fatalf("Invoke() error = %v", err)
				}
			}
			if sawCookie != tt.wantCookie {
				t.Errorf("cookie forwarded = %v, want %v", sawCookie, tt.wantCookie)
			}
		})
	}
}

func TestInvoke_WithBoundedTrace(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(http.StatusOK, `{}`))
	defer srv.Close()

	tr := trace.New()
	c, err := NewClient(WithBaseURL(srv.URL), WithTrace(tr))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := c.Invoke(context.Background(), "/S/a", nil); err != nil {
			t.Fatal(err)
		}
	}

	snap := tr.Snapshot()
	if len(snap) != trace.Capacity {
		t.Fatalf("len(Snapshot()) = %d, want %d", len(snap), trace.Capacity)
	}
	// six events recorded; the window holds response, request, response
	want := []domain.TraceKind{domain.TraceKindResponse, domain.TraceKindRequest, domain.TraceKindResponse}
	for i := range want {
		if snap[i].Kind != want[i] {
			t.Errorf("Snapshot()[%d].Kind = %q, want %q", i, snap[i].Kind, want[i])
		}
	}
}

func TestBodyError(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":"bad"}`, "bad"},
		{`{"error":""}`, ""},
		{`{"error":null}`, ""},
		{`{"user":"u1"}`, ""},
		{`[{"error":"not an envelope"}]`, ""},
		{`{"error":{"code":7}}`, `{"code":7}`},
		{``, ""},
		{`garbage`, ""},
	}

	for _, tt := range tests {
		if got := bodyError([]byte(tt.body)); got != tt.want {
			t.Errorf("bodyError(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
