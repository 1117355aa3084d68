package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
)

// MemoryStore keeps objects in process memory. Testing only.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
	token   string
}

// NewMemoryStore creates an in-memory store. baseURL and token shape the
// signed URLs the same way the filesystem store does.
func NewMemoryStore(baseURL, token string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		baseURL: baseURL,
		token:   token,
	}
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *MemoryStore) SignedURL(_ context.Context, key string) (string, error) {
	u := fmt.Sprintf("%s/files/%s", s.baseURL, key)
	if s.token != "" {
		u += "?token=" + url.QueryEscape(s.token)
	}
	return u, nil
}

func (s *MemoryStore) Download(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", key, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[string][]byte)
	return nil
}

// Len returns the number of stored objects. Testing helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
