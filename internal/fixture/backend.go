// Package fixture is a self-contained stand-in for the memories backend and
// its object storage. It answers every endpoint with deterministic data so
// the client can be exercised without a deployment, either over a listener
// (memoriesctl devbackend) or in-process through Transport.
package fixture

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
	"github.com/tjfontaine/memories-gateway/internal/core/ports"
)

const (
	DefaultAPIPrefix = "/api"
	DefaultBucket    = "memories-fixture"
	defaultExpiry    = 15 * time.Minute
	maxUploadBytes   = 32 << 20
)

// Option configures a Backend.
type Option func(*Backend)

// WithAPIPrefix sets the path under which backend endpoints are served.
func WithAPIPrefix(prefix string) Option {
	return func(b *Backend) {
		b.prefix = "/" + strings.Trim(prefix, "/")
		if b.prefix == "/" {
			b.prefix = ""
		}
	}
}

// WithOverrides replaces the built-in reply of the named endpoints.
func WithOverrides(overrides map[string]Response) Option {
	return func(b *Backend) {
		for k, v := range overrides {
			b.overrides[k] = v
		}
	}
}

// WithPresigner issues delegated URLs from real storage instead of the
// in-memory store. Confirmation then trusts the client.
func WithPresigner(p ports.Presigner, bucket string) Option {
	return func(b *Backend) {
		b.presigner = p
		if bucket != "" {
			b.bucket = bucket
		}
	}
}

// WithStore sets the object store.
func WithStore(s *ObjectStore) Option {
	return func(b *Backend) {
		b.store = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// Backend serves the fixture endpoints.
type Backend struct {
	router    chi.Router
	prefix    string
	bucket    string
	overrides map[string]Response
	store     *ObjectStore
	presigner ports.Presigner
	logger    *slog.Logger
}

// New builds a fixture backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		prefix:    DefaultAPIPrefix,
		bucket:    DefaultBucket,
		overrides: make(map[string]Response),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.store == nil {
		b.store = NewObjectStore()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	api := func(r chi.Router) {
		r.Post("/UserAuthentication/authenticate", b.handleAuthenticate)
		r.Post("/UserAuthentication/register", b.handleAuthenticate)
		r.Post("/ImageStorage/requestUploadUrl", b.handleRequestUploadURL)
		r.Post("/ImageStorage/confirmUpload", b.handleConfirmUpload)
		r.Post("/Groups/_listGroupsForUser", b.canned(`[{"groups":[]}]`))
		r.Post("/Groups/_getGroupDetails", b.canned(`[{"groupName":"Mock Group","members":[],"invitedMembers":[]}]`))
		r.Post("/{service}/{action}", b.handleDefault)
	}
	if b.prefix == "" {
		api(r)
	} else {
		r.Route(b.prefix, api)
	}
	r.Put("/storage/{bucket}/*", b.handlePutObject)
	r.Get("/storage/{bucket}/*", b.handleGetObject)

	b.router = r
	return b
}

// Store returns the backing object store.
func (b *Backend) Store() *ObjectStore {
	return b.store
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, b.prefix)
	if resp, ok := b.overrides[endpoint]; ok && r.Method != http.MethodPut {
		b.logger.Debug("fixture override", slog.String("endpoint", endpoint))
		writeRaw(w, resp.Status, resp.Body)
		return
	}
	b.router.ServeHTTP(w, r)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (b *Backend) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	if req.Username == "" {
		writeBackendError(w, "username is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user": "mock-user-" + req.Username})
}

func (b *Backend) handleRequestUploadURL(w http.ResponseWriter, r *http.Request) {
	var req domain.UploadURLRequest
	if !decode(w, r, &req) {
		return
	}
	if req.User == "" || req.ImageName == "" {
		writeBackendError(w, "user and imageName are required")
		return
	}

	expires := defaultExpiry
	if req.ExpiresInSeconds > 0 {
		expires = time.Duration(req.ExpiresInSeconds) * time.Second
	}
	key := fmt.Sprintf("uploads/%s-%s", uuid.NewString(), safeName(req.ImageName))

	var uploadURL string
	if b.presigner != nil {
		signed, err := b.presigner.PresignPut(r.Context(), b.bucket, key, req.ContentType, expires)
		if err != nil {
			b.logger.Error("presign failed", slog.String("object", key), slog.String("error", err.Error()))
			writeBackendError(w, "could not issue upload url")
			return
		}
		uploadURL = signed
	} else {
		expiresAt := b.store.Grant(b.bucket, key, req.ContentType, expires)
		q := url.Values{}
		q.Set("X-Expires", fmt.Sprintf("%d", expiresAt.Unix()))
		uploadURL = b.storageURL(r, key) + "?" + q.Encode()
	}

	writeJSON(w, http.StatusOK, domain.UploadURLResponse{
		UploadURL: uploadURL,
		Bucket:    b.bucket,
		Object:    key,
	})
}

func (b *Backend) handleConfirmUpload(w http.ResponseWriter, r *http.Request) {
	var req domain.ConfirmUploadRequest
	if !decode(w, r, &req) {
		return
	}
	if req.User == "" || req.Object == "" {
		writeBackendError(w, "user and object are required")
		return
	}
	if b.presigner == nil {
		obj, ok := b.store.Get(b.bucket, req.Object)
		if !ok {
			writeBackendError(w, "object not found: "+req.Object)
			return
		}
		if req.Size > 0 && int64(len(obj.Data)) != req.Size {
			writeBackendError(w, fmt.Sprintf("size mismatch: stored %d bytes, confirmed %d", len(obj.Data), req.Size))
			return
		}
	}

	writeJSON(w, http.StatusOK, domain.ConfirmUploadResponse{
		Image: "mock-image-" + uuid.NewString(),
		URL:   b.storageURL(r, req.Object),
	})
}

func (b *Backend) handleDefault(w http.ResponseWriter, r *http.Request) {
	// Queries answer with an array, actions with an object.
	if strings.HasPrefix(chi.URLParam(r, "action"), "_") {
		writeRaw(w, http.StatusOK, json.RawMessage(`[{}]`))
		return
	}
	writeRaw(w, http.StatusOK, json.RawMessage(`{}`))
}

func (b *Backend) canned(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeRaw(w, http.StatusOK, json.RawMessage(body))
	}
}

func (b *Backend) handlePutObject(w http.ResponseWriter, r *http.Request) {
	bucket, key := chi.URLParam(r, "bucket"), chi.URLParam(r, "*")

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if err := b.store.Put(bucket, key, r.Header.Get("Content-Type"), data); err != nil {
		var forbidden *ErrForbidden
		if errors.As(err, &forbidden) {
			b.logger.Warn("fixture upload rejected",
				slog.String("object", key),
				slog.String("reason", forbidden.Reason))
			http.Error(w, forbidden.Reason, http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (b *Backend) handleGetObject(w http.ResponseWriter, r *http.Request) {
	obj, ok := b.store.Get(chi.URLParam(r, "bucket"), chi.URLParam(r, "*"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.Write(obj.Data)
}

func (b *Backend) storageURL(r *http.Request, key string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/storage/%s/%s", scheme, r.Host, b.bucket, key)
}

// safeName keeps object keys usable as URL path segments.
func safeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '-'
	}, name)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// writeBackendError follows the backend convention of reporting failures in
// a 200 body.
func writeBackendError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
