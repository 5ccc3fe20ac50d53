package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/timmy/producer-tools/internal/domain"
	"github.com/timmy/producer-tools/internal/logger"
)

// Publisher uploads finished artifacts under <prefix>/<job id>/<file name>.
type Publisher struct {
	store  ObjectStorage
	prefix string
}

// NewPublisher creates a Publisher writing under prefix.
func NewPublisher(store ObjectStorage, prefix string) *Publisher {
	return &Publisher{store: store, prefix: strings.Trim(prefix, "/")}
}

// ObjectKey returns the key an artifact is stored under.
func ObjectKey(prefix, jobID, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path.Join(jobID, name)
	}
	return path.Join(prefix, jobID, name)
}

// Publish uploads the file at localPath and returns its download URL.
// Parameters:
//   - ctx: context for cancellation.
//   - jobID: owning job, used in the object key.
//   - localPath: finished artifact on disk.
//   - format: artifact format, used for the content type.
//
// Returns:
//   - string: URL clients can download the artifact from.
//   - error: non-nil when reading, uploading or URL generation fails.
func (p *Publisher) Publish(ctx context.Context, jobID, localPath string, format domain.AudioFormat) (string, error) {
	start := time.Now()

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat artifact: %w", err)
	}

	key := ObjectKey(p.prefix, jobID, filepath.Base(localPath))
	if err := p.store.Upload(ctx, key, f, info.Size(), format.ContentType()); err != nil {
		return "", err
	}

	url, err := p.store.URL(ctx, key)
	if err != nil {
		if delErr := p.store.Delete(ctx, key); delErr != nil {
			logger.FromContext(ctx).WithError(delErr).Warn("Failed to remove unpublished object")
		}
		return "", err
	}

	logger.With(logger.Fields{"key": key}).
		WithSize(info.Size()).
		WithDuration(time.Since(start)).
		Info(ctx, "Artifact published")
	return url, nil
}
