package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FSStore stores objects on the local filesystem. Signed URLs point at
// the API server's /files route with a static access token appended, so
// the recognition backend can fetch the bytes over HTTP.
type FSStore struct {
	dir     string
	baseURL string
	token   string
}

// NewFSStore creates a filesystem store rooted at dir. baseURL is the
// externally reachable API base; token is appended to signed URLs and
// checked by the file-serving route.
func NewFSStore(dir, baseURL, token string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FSStore{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
	}, nil
}

// Compile-time check that FSStore implements Store.
var _ Store = (*FSStore)(nil)

// Token returns the static access token, for the file-serving route.
func (s *FSStore) Token() string {
	return s.token
}

// path maps a key to a location under the store root, refusing keys that
// would escape it.
func (s *FSStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}

func (s *FSStore) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("create object file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	return nil
}

func (s *FSStore) SignedURL(_ context.Context, key string) (string, error) {
	u := fmt.Sprintf("%s/files/%s", s.baseURL, key)
	if s.token != "" {
		u += "?token=" + url.QueryEscape(s.token)
	}
	return u, nil
}

func (s *FSStore) Download(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("download %s: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	return f, nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (s *FSStore) DeleteAll(_ context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read storage dir: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("delete %s: %w", entry.Name(), err)
		}
	}
	return nil
}
