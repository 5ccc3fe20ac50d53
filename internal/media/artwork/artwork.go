// Package artwork downloads thumbnails and embeds them as cover art.
package artwork

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"
	_ "golang.org/x/image/webp"

	"github.com/timmy/producer-tools/internal/domain"
	"github.com/timmy/producer-tools/internal/logger"
)

// maxImageBytes bounds thumbnail downloads.
const maxImageBytes = 10 << 20

const coverFileName = "cover.jpg"

var ErrUnsupported = errors.New("format cannot carry cover art")

// Attacher embeds an image into an audio file in place.
type Attacher interface {
	AttachCover(ctx context.Context, audio, cover string) error
}

// Config configures the Embedder.
type Config struct {
	Timeout time.Duration
	Quality int
}

// Embedder fetches a thumbnail, re-encodes it as JPEG and attaches it.
type Embedder struct {
	client   *resty.Client
	attacher Attacher
	quality  int
}

// New creates an Embedder.
func New(cfg Config, attacher Attacher) *Embedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	quality := cfg.Quality
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	client := resty.New().SetTimeout(timeout)
	return &Embedder{client: client, attacher: attacher, quality: quality}
}

// Embed attaches the image at thumbnailURL to audio.
// Parameters:
//   - ctx: context for cancellation.
//   - audio: finished artifact, rewritten in place.
//   - thumbnailURL: image to download.
//   - format: artifact format; must support attached pictures.
//
// Returns:
//   - error: ErrUnsupported for formats without cover support, otherwise
//     download, decode or ffmpeg failures.
func (e *Embedder) Embed(ctx context.Context, audio, thumbnailURL string, format domain.AudioFormat) error {
	if !format.SupportsCoverArt() {
		return ErrUnsupported
	}
	if strings.TrimSpace(thumbnailURL) == "" {
		return errors.New("no thumbnail url")
	}

	data, err := e.download(ctx, thumbnailURL)
	if err != nil {
		return err
	}
	jpg, err := ToJPEG(data, e.quality)
	if err != nil {
		return err
	}

	cover := filepath.Join(filepath.Dir(audio), coverFileName)
	if err := os.WriteFile(cover, jpg, 0o600); err != nil {
		return fmt.Errorf("write cover: %w", err)
	}
	defer func() { _ = os.Remove(cover) }()

	if err := e.attacher.AttachCover(ctx, audio, cover); err != nil {
		return err
	}
	logger.With(logger.Fields{"cover_size": humanize.Bytes(uint64(len(jpg)))}).
		WithSize(int64(len(jpg))).
		Debug(ctx, "Cover art embedded")
	return nil
}

func (e *Embedder) download(ctx context.Context, url string) ([]byte, error) {
	resp, err := e.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download thumbnail: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("thumbnail download returned HTTP %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, errors.New("thumbnail is empty")
	}
	if len(body) > maxImageBytes {
		return nil, fmt.Errorf("thumbnail too large: %s", humanize.Bytes(uint64(len(body))))
	}
	return body, nil
}

// ToJPEG decodes a JPEG, PNG, GIF or WebP image and re-encodes it as JPEG.
func ToJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode thumbnail: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode cover: %w", err)
	}
	return buf.Bytes(), nil
}
