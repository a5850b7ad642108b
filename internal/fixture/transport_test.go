package fixture

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
)

func TestTransport_ServesHandler(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Path", r.URL.Path)
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, r.Host)
	})
	client := &http.Client{Transport: NewTransport(h)}

	resp, err := client.Get("http://localhost:8000/api/x")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Path") != "/api/x" {
		t.Errorf("path = %q", resp.Header.Get("X-Path"))
	}
	if string(body) != "localhost:8000" {
		t.Errorf("host = %q", body)
	}
}

func TestTransport_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://localhost/", nil)
	_, err := NewTransport(http.NotFoundHandler()).RoundTrip(req)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
