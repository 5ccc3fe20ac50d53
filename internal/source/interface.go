// Package source defines how remote media is fetched into local files.
package source

import (
	"context"

	"github.com/timmy/producer-tools/internal/domain"
)

// Metadata describes a fetched media item.
type Metadata struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Duration     float64 `json:"duration"`
	Uploader     string  `json:"uploader,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	WebpageURL   string  `json:"webpage_url,omitempty"`
}

// Media is a fetched file on local disk.
type Media struct {
	Path     string
	Metadata Metadata
}

// Request is a single fetch.
type Request struct {
	// URL of a single media item.
	URL string
	// Dir receives the downloaded file. It must exist.
	Dir string
	// Prefix is prepended to the downloaded file name.
	Prefix string
}

// Fetcher downloads media for one extraction strategy.
type Fetcher interface {
	// Fetch downloads the media at req.URL into req.Dir.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - req: what to fetch and where to put it.
	//   - strategy: extraction profile to use for this attempt.
	// Returns:
	//   - *Media: local path and metadata.
	//   - err: classified when the cause is known (see fallback.Classify);
	//     multi-item input fails with an invalid input class.
	Fetch(ctx context.Context, req Request, strategy domain.ExtractionStrategy) (*Media, error)
}
