package storage

import (
	"context"
	"io"
)

// ObjectStorage is the subset of an object store the blog archive needs.
type ObjectStorage interface {
	// Upload writes an object, replacing any existing one under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}
