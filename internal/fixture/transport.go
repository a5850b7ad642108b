package fixture

import (
	"net/http"
	"net/http/httptest"
)

// Transport serves requests in-process with an http.Handler, so clients can
// talk to a fixture backend without a listener.
type Transport struct {
	Handler http.Handler
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport returns a RoundTripper backed by h.
func NewTransport(h http.Handler) *Transport {
	return &Transport{Handler: h}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	in := req.Clone(req.Context())
	in.RequestURI = req.URL.RequestURI()
	if in.RemoteAddr == "" {
		in.RemoteAddr = "127.0.0.1:0"
	}
	if in.Host == "" {
		in.Host = req.URL.Host
	}

	rec := httptest.NewRecorder()
	t.Handler.ServeHTTP(rec, in)

	resp := rec.Result()
	resp.Request = req
	return resp, nil
}
