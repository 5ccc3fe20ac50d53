package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/timmy/producer-tools/internal/logger"
	"github.com/timmy/producer-tools/internal/media"
)

// RemoteConfig configures the remote analyzer.
type RemoteConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Remote posts the audio to an HTTP analysis service.
type Remote struct {
	client   *resty.Client
	endpoint string
}

type remoteResponse struct {
	BPM   *float64 `json:"bpm"`
	Key   *string  `json:"key"`
	Error string   `json:"error"`
}

// NewRemote creates a Remote analyzer for cfg.BaseURL.
func NewRemote(cfg RemoteConfig) *Remote {
	client := resty.New()
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	return &Remote{
		client:   client,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/analyze",
	}
}

// Analyze implements media.Analyzer.
func (r *Remote) Analyze(ctx context.Context, path string) media.Analysis {
	out, err := r.analyze(ctx, path)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Remote audio analysis failed")
		return media.Analysis{}
	}
	return out
}

func (r *Remote) analyze(ctx context.Context, path string) (media.Analysis, error) {
	var resp remoteResponse
	httpResp, err := r.client.R().
		SetContext(ctx).
		SetFile("file", path).
		SetResult(&resp).
		Post(r.endpoint)
	if err != nil {
		return media.Analysis{}, fmt.Errorf("failed to call analysis API: %w", err)
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		msg := strings.TrimSpace(string(httpResp.Body()))
		if resp.Error != "" {
			msg = resp.Error
		}
		return media.Analysis{}, fmt.Errorf("analysis API returned HTTP %d: %s", httpResp.StatusCode(), msg)
	}

	var out media.Analysis
	if resp.BPM != nil && *resp.BPM > 0 {
		v := *resp.BPM
		out.Tempo = &v
	}
	if resp.Key != nil && strings.TrimSpace(*resp.Key) != "" {
		k := strings.TrimSpace(*resp.Key)
		out.Key = &k
	}
	return out, nil
}
