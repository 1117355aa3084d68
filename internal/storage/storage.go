// Package storage provides object storage for raw image bytes behind a
// single interface, with filesystem, S3, and in-memory adapters.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound indicates the requested object key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Store is the object-store contract. Keys are opaque paths like
// "images/<uuid>.jpg"; they are what the metadata record's object_path
// field holds.
type Store interface {
	// Upload stores the object bytes under key.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// SignedURL returns a fetchable URL for the object, carrying whatever
	// access token the backend requires as a query-string parameter.
	SignedURL(ctx context.Context, key string) (string, error)
	// Download opens the object for reading. The caller closes it.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// DeleteAll removes every object.
	DeleteAll(ctx context.Context) error
}
