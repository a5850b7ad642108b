package fixture

import (
	"fmt"
	"sync"
	"time"
)

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
	StoredAt    time.Time
}

// grant is an outstanding delegated upload permission.
type grant struct {
	contentType string
	expiresAt   time.Time
}

// ObjectStore is an in-memory bucket store that accepts uploads only for
// keys it has granted. It behaves like signed storage URLs do: a grant
// commits to a content type (possibly none) and expires.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	grants  map[string]grant
	now     func() time.Time
}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		objects: make(map[string]Object),
		grants:  make(map[string]grant),
		now:     time.Now,
	}
}

// Grant allows one upload of bucket/key until ttl elapses.
func (s *ObjectStore) Grant(bucket, key, contentType string, ttl time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires := s.now().Add(ttl)
	s.grants[objectPath(bucket, key)] = grant{contentType: contentType, expiresAt: expires}
	return expires
}

// ErrForbidden is returned for uploads the store refuses.
type ErrForbidden struct {
	Reason string
}

func (e *ErrForbidden) Error() string {
	return "forbidden: " + e.Reason
}

// Put stores data under bucket/key. contentType is the header sent with the
// upload; a value the grant did not commit to is rejected.
func (s *ObjectStore) Put(bucket, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := objectPath(bucket, key)
	g, ok := s.grants[path]
	if !ok {
		return &ErrForbidden{Reason: "no upload grant for " + path}
	}
	if s.now().After(g.expiresAt) {
		delete(s.grants, path)
		return &ErrForbidden{Reason: "request has expired"}
	}
	if contentType != "" && contentType != g.contentType {
		return &ErrForbidden{Reason: fmt.Sprintf("signature does not match: content type %q not signed", contentType)}
	}

	delete(s.grants, path)
	stored := contentType
	if stored == "" {
		stored = g.contentType
	}
	s.objects[path] = Object{Data: data, ContentType: stored, StoredAt: s.now()}
	return nil
}

// Get returns the object stored under bucket/key.
func (s *ObjectStore) Get(bucket, key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[objectPath(bucket, key)]
	return obj, ok
}

// Len reports the number of stored objects.
func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func objectPath(bucket, key string) string {
	return bucket + "/" + key
}
