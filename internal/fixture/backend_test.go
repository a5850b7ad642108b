package fixture

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/memories-gateway/internal/core/domain"
	"github.com/tjfontaine/memories-gateway/internal/core/ports"
	"github.com/tjfontaine/memories-gateway/internal/rpc"
	"github.com/tjfontaine/memories-gateway/internal/upload"
)

func newClient(t *testing.T, b *Backend) *rpc.Client {
	t.Helper()
	c, err := rpc.NewClient(rpc.WithTransport(NewTransport(b)))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestBackend_Authenticate(t *testing.T) {
	c := newClient(t, New())

	res, err := rpc.Action[struct {
		User string `json:"user"`
	}](context.Background(), c, "/UserAuthentication/authenticate", ports.Payload{"username": "alice", "password": "x"})
	if err != nil {
		t.Fatalf("authenticate error = %v", err)
	}
	if res.User != "mock-user-alice" {
		t.Errorf("user = %q, want mock-user-alice", res.User)
	}

	_, err = c.Invoke(context.Background(), "/UserAuthentication/register", ports.Payload{})
	if !domain.IsKind(err, domain.ErrorKindBackend) || err.Error() != "username is required" {
		t.Errorf("register without username error = %v", err)
	}
}

func TestBackend_Defaults(t *testing.T) {
	c := newClient(t, New())
	ctx := context.Background()

	tests := []struct {
		endpoint string
		want     string
	}{
		{"/Groups/_listGroupsForUser", `[{"groups":[]}]`},
		{"/Groups/_getGroupDetails", `[{"groupName":"Mock Group","members":[],"invitedMembers":[]}]`},
		{"/MemoryEntries/_getMemory", `[{}]`},
		{"/Groups/leaveGroup", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			raw, err := c.Invoke(ctx, tt.endpoint, ports.Payload{"user": "u1"})
			if err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			if string(raw) != tt.want {
				t.Errorf("body = %s, want %s", raw, tt.want)
			}
		})
	}
}

func TestBackend_Overrides(t *testing.T) {
	overrides, err := ParseOverrides([]byte(`
responses:
  - endpoint: /Groups/_listGroupsForUser
    body: [{groups: [g1, g2]}]
  - endpoint: /UserAuthentication/authenticate
    status: 401
    body: {error: invalid credentials}
`))
	if err != nil {
		t.Fatalf("ParseOverrides() error = %v", err)
	}
	c := newClient(t, New(WithOverrides(overrides)))
	ctx := context.Background()

	raw, err := c.Invoke(ctx, "/Groups/_listGroupsForUser", nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if string(raw) != `[{"groups":["g1","g2"]}]` {
		t.Errorf("body = %s", raw)
	}

	_, err = c.Invoke(ctx, "/UserAuthentication/authenticate", ports.Payload{"username": "alice"})
	var derr *domain.Error
	if !errors.As(err, &derr) {
		t.Fatalf("expected *domain.Error, got %v", err)
	}
	if derr.Kind != domain.ErrorKindBackend || derr.Message != "invalid credentials" || derr.Status != 401 {
		t.Errorf("error = %+v", derr)
	}
}

func TestParseOverrides_RequiresEndpoint(t *testing.T) {
	if _, err := ParseOverrides([]byte("responses:\n  - body: {}\n")); err == nil {
		t.Error("expected error for fixture without endpoint")
	}
}

func TestBackend_UploadRoundTrip(t *testing.T) {
	b := New()
	transport := NewTransport(b)
	c := newClient(t, b)

	var phases []domain.UploadPhase
	o, err := upload.New(c, upload.NewHTTPUploader(&http.Client{Transport: transport}),
		upload.WithPhaseHook(func(p domain.UploadPhase) { phases = append(phases, p) }))
	if err != nil {
		t.Fatalf("upload.New() error = %v", err)
	}

	image, err := o.Upload(context.Background(), upload.Request{
		Owner:       "u1",
		FileName:    "beach day.png",
		Body:        []byte("png-bytes"),
		ContentType: "image/png",
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasPrefix(image.ImageID, "mock-image-") {
		t.Errorf("image id = %q", image.ImageID)
	}
	if !strings.HasSuffix(image.ObjectKey, "-beach-day.png") {
		t.Errorf("object key = %q", image.ObjectKey)
	}
	if got := phases[len(phases)-1]; got != domain.UploadPhaseComplete {
		t.Errorf("final phase = %q", got)
	}

	// The permanent URL serves the stored bytes.
	resp, err := (&http.Client{Transport: transport}).Get(image.PermanentURL)
	if err != nil {
		t.Fatalf("GET permanent url: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(data) != "png-bytes" {
		t.Errorf("GET %s = %d %q", image.PermanentURL, resp.StatusCode, data)
	}
}

func TestBackend_RejectsConflictingContentType(t *testing.T) {
	b := New()
	c := newClient(t, b)
	ctx := context.Background()

	grant, err := rpc.Action[domain.UploadURLResponse](ctx, c, "/ImageStorage/requestUploadUrl",
		ports.Payload{"user": "u1", "imageName": "a.png"})
	if err != nil {
		t.Fatalf("requestUploadUrl error = %v", err)
	}

	req, _ := http.NewRequest(http.MethodPut, grant.UploadURL, strings.NewReader("data"))
	req.Header.Set("Content-Type", "image/png")
	resp, err := (&http.Client{Transport: NewTransport(b)}).Do(req)
	if err != nil {
		t.Fatalf("PUT error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	if b.Store().Len() != 0 {
		t.Errorf("store has %d objects, want 0", b.Store().Len())
	}

	_, err = c.Invoke(ctx, "/ImageStorage/confirmUpload", ports.Payload{"user": "u1", "object": grant.Object})
	if !domain.IsKind(err, domain.ErrorKindBackend) {
		t.Errorf("confirm of missing object error = %v", err)
	}
}

func TestObjectStore_Expiry(t *testing.T) {
	s := NewObjectStore()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	s.Grant("b", "k", "", time.Minute)
	now = now.Add(2 * time.Minute)

	err := s.Put("b", "k", "", []byte("x"))
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("Put() after expiry error = %v", err)
	}
	if _, ok := s.Get("b", "k"); ok {
		t.Error("expired upload was stored")
	}
}

func TestObjectStore_GrantIsSingleUse(t *testing.T) {
	s := NewObjectStore()
	s.Grant("b", "k", "image/png", time.Minute)

	if err := s.Put("b", "k", "image/png", []byte("x")); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	if err := s.Put("b", "k", "", []byte("y")); err == nil {
		t.Error("second Put() succeeded without a grant")
	}
	obj, _ := s.Get("b", "k")
	if string(obj.Data) != "x" || obj.ContentType != "image/png" {
		t.Errorf("object = %+v", obj)
	}
}

type stubPresigner struct {
	gotBucket, gotKey, gotContentType string
}

func (p *stubPresigner) PresignPut(_ context.Context, bucket, key, contentType string, _ time.Duration) (string, error) {
	p.gotBucket, p.gotKey, p.gotContentType = bucket, key, contentType
	return "https://s3.example/" + bucket + "/" + key + "?X-Amz-Signature=abc", nil
}

func TestBackend_Presigner(t *testing.T) {
	p := &stubPresigner{}
	c := newClient(t, New(WithPresigner(p, "photos")))

	grant, err := rpc.Action[domain.UploadURLResponse](context.Background(), c, "/ImageStorage/requestUploadUrl",
		ports.Payload{"user": "u1", "imageName": "a.png"})
	if err != nil {
		t.Fatalf("requestUploadUrl error = %v", err)
	}
	if grant.Bucket != "photos" || p.gotBucket != "photos" || p.gotKey != grant.Object {
		t.Errorf("grant = %+v, presigner saw %s/%s", grant, p.gotBucket, p.gotKey)
	}
	if !strings.HasPrefix(grant.UploadURL, "https://s3.example/photos/") {
		t.Errorf("upload url = %q", grant.UploadURL)
	}
}
