// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"maps"
	"sync"

	"github.com/alexdfirestone/national-parks/internal/storage"
)

// BlobStore is an in-memory storage.Store. When Err is set every Put fails with it.
type BlobStore struct {
	Err error

	mu      sync.Mutex
	objects map[string][]byte
}

// NewBlobStore creates an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string][]byte)}
}

// Put stores the object and reports a CDN-style URL for it.
func (s *BlobStore) Put(_ context.Context, path string, r io.Reader, contentType string) (storage.Object, error) {
	if s.Err != nil {
		return storage.Object{}, s.Err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return storage.Object{}, err
	}
	s.mu.Lock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[path] = b
	s.mu.Unlock()
	return storage.Object{Path: path, URL: "https://cdn.test/" + path, Size: int64(len(b)), ContentType: contentType}, nil
}

// Close is a no-op.
func (s *BlobStore) Close() error { return nil }

// Objects returns a copy of everything stored so far, keyed by path.
func (s *BlobStore) Objects() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.objects)
}

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t interface {
	Helper()
	Fatalf(string, ...any)
}, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
