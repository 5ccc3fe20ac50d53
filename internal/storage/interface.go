package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the object storage operations used for publishing
// finished artifacts.
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// URL returns a URL clients can download the object from
	URL(ctx context.Context, key string) (string, error)

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error
}
