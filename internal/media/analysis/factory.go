// Package analysis provides tempo and key detection.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/timmy/producer-tools/internal/media"
)

const (
	ProviderBuiltin = "builtin"
	ProviderRemote  = "remote"
	ProviderNone    = "none"
)

// Config selects and configures an analyzer.
type Config struct {
	Provider      string
	SampleSeconds int
	Remote        RemoteConfig
}

// None never detects anything.
var None = media.AnalyzerFunc(func(context.Context, string) media.Analysis {
	return media.Analysis{}
})

// New builds the analyzer named by cfg.Provider.
// Parameters:
//   - cfg: analyzer configuration.
//   - decoder: PCM decoder used by the builtin provider.
//   - prober: optional duration probe used by the builtin provider.
//
// Returns:
//   - media.Analyzer: configured analyzer.
//   - error: when the provider is unknown or misconfigured.
func New(cfg Config, decoder PCMDecoder, prober Prober) (media.Analyzer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderBuiltin:
		if decoder == nil {
			return nil, fmt.Errorf("builtin analyzer requires a decoder")
		}
		return NewBuiltin(decoder, prober, cfg.SampleSeconds), nil
	case ProviderRemote:
		if strings.TrimSpace(cfg.Remote.BaseURL) == "" {
			return nil, fmt.Errorf("remote analyzer requires base_url")
		}
		return NewRemote(cfg.Remote), nil
	case ProviderNone:
		return None, nil
	default:
		return nil, fmt.Errorf("unsupported analyzer provider: %s", cfg.Provider)
	}
}
