// Package ytdlp fetches media with the yt-dlp command-line tool.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/timmy/producer-tools/internal/domain"
	"github.com/timmy/producer-tools/internal/fallback"
	"github.com/timmy/producer-tools/internal/logger"
	"github.com/timmy/producer-tools/internal/source"
)

var commandContext = exec.CommandContext

// mediaExtensions are probed when yt-dlp does not report the final path.
var mediaExtensions = []string{".webm", ".m4a", ".mp4", ".opus", ".ogg", ".mp3", ".aac"}

const cookiesFileName = "cookies.txt"

// Config configures the yt-dlp fetcher.
type Config struct {
	Binary        string
	CookiesFile   string
	CookiesBase64 string
	// WorkDir receives the decoded cookies file when CookiesBase64 is set.
	WorkDir       string
	Timeout       time.Duration
	SocketTimeout time.Duration
}

// Fetcher implements source.Fetcher.
type Fetcher struct {
	binary        string
	cookiesFile   string
	timeout       time.Duration
	socketTimeout time.Duration
}

// info is the subset of yt-dlp's JSON we read.
type info struct {
	Type       string  `json:"_type"`
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Uploader   string  `json:"uploader"`
	Thumbnail  string  `json:"thumbnail"`
	WebpageURL string  `json:"webpage_url"`
	Entries    []info  `json:"entries"`
}

// New creates a Fetcher. Base64 cookies are decoded into cfg.WorkDir once.
func New(cfg Config) (*Fetcher, error) {
	f := &Fetcher{
		binary:        strings.TrimSpace(cfg.Binary),
		cookiesFile:   strings.TrimSpace(cfg.CookiesFile),
		timeout:       cfg.Timeout,
		socketTimeout: cfg.SocketTimeout,
	}
	if f.binary == "" {
		f.binary = "yt-dlp"
	}
	if f.cookiesFile == "" && strings.TrimSpace(cfg.CookiesBase64) != "" {
		path, err := writeCookies(cfg.WorkDir, cfg.CookiesBase64)
		if err != nil {
			return nil, err
		}
		f.cookiesFile = path
	}
	return f, nil
}

// Binary returns the executable used.
func (f *Fetcher) Binary() string {
	return f.binary
}

func writeCookies(dir, encoded string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", fmt.Errorf("decode cookies base64: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cookies dir: %w", err)
	}
	path := filepath.Join(dir, cookiesFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write cookies file: %w", err)
	}
	return path, nil
}

// Fetch inspects the URL, refuses multi-item input, then downloads the best
// audio stream.
func (f *Fetcher) Fetch(ctx context.Context, req source.Request, strategy domain.ExtractionStrategy) (*source.Media, error) {
	if err := source.ValidateURL(req.URL); err != nil {
		return nil, fallback.NewError(domain.FailureInvalidInput, err)
	}
	if req.Dir == "" {
		return nil, errors.New("yt-dlp fetch: output directory required")
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	meta, err := f.inspect(ctx, req.URL, strategy)
	if err != nil {
		return nil, err
	}

	target := meta.WebpageURL
	if target == "" {
		target = req.URL
	}
	path, err := f.download(ctx, target, req, meta.ID, strategy)
	if err != nil {
		removePartial(req.Dir, filePrefix(req, meta.ID))
		return nil, err
	}

	logger.CtxInfo(ctx, "Fetched %q to %s", meta.Title, filepath.Base(path))
	return &source.Media{Path: path, Metadata: meta}, nil
}

func (f *Fetcher) baseArgs(strategy domain.ExtractionStrategy) []string {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"--extractor-args", "youtube:player_client=" + strategy.Client,
	}
	if f.socketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(f.socketTimeout.Seconds())))
	}
	if f.cookiesFile != "" {
		args = append(args, "--cookies", f.cookiesFile)
	}
	return args
}

func (f *Fetcher) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := commandContext(ctx, f.binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s", ctxErr, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (f *Fetcher) inspect(ctx context.Context, url string, strategy domain.ExtractionStrategy) (source.Metadata, error) {
	args := append(f.baseArgs(strategy), "--dump-single-json", "--skip-download", "--", url)
	out, err := f.run(ctx, args)
	if err != nil {
		return source.Metadata{}, fmt.Errorf("yt-dlp inspect: %w", err)
	}

	var in info
	if err := json.Unmarshal(out, &in); err != nil {
		return source.Metadata{}, fallback.NewError(domain.FailureExtractionFailed,
			fmt.Errorf("yt-dlp inspect: parse output: %w", err))
	}

	if in.Type == "playlist" || len(in.Entries) > 0 {
		switch len(in.Entries) {
		case 1:
			in = in.Entries[0]
		case 0:
			return source.Metadata{}, fallback.InvalidInput("playlist has no entries")
		default:
			return source.Metadata{}, fallback.InvalidInput("playlists are not supported (%d entries), enter the url of a single video", len(in.Entries))
		}
	}
	if in.ID == "" {
		return source.Metadata{}, fallback.NewError(domain.FailureExtractionFailed,
			errors.New("unable to extract video information"))
	}

	return source.Metadata{
		ID:           in.ID,
		Title:        in.Title,
		Duration:     in.Duration,
		Uploader:     in.Uploader,
		ThumbnailURL: in.Thumbnail,
		WebpageURL:   in.WebpageURL,
	}, nil
}

func filePrefix(req source.Request, id string) string {
	prefix := req.Prefix
	if prefix == "" {
		prefix = "media"
	}
	return prefix + "-" + id
}

func (f *Fetcher) download(ctx context.Context, url string, req source.Request, id string, strategy domain.ExtractionStrategy) (string, error) {
	prefix := filePrefix(req, id)
	template := filepath.Join(req.Dir, prefix+".%(ext)s")
	args := append(f.baseArgs(strategy),
		"-f", "bestaudio/best",
		"-o", template,
		"--print", "after_move:filepath",
		"--", url,
	)
	out, err := f.run(ctx, args)
	if err != nil {
		return "", fmt.Errorf("yt-dlp download: %w", err)
	}

	if path := lastLine(out); path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
	}
	for _, ext := range mediaExtensions {
		candidate := filepath.Join(req.Dir, prefix+ext)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
	}
	return "", fallback.NewError(domain.FailureExtractionFailed,
		fmt.Errorf("downloaded file not found for %s", id))
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func removePartial(dir, prefix string) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+".*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
}
