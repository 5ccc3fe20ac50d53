// Package media holds the contracts for transcoding and analysing audio.
package media

import (
	"context"

	"github.com/timmy/producer-tools/internal/domain"
)

// Transcoder converts a media file into an audio format.
type Transcoder interface {
	// Transcode writes a new file next to input and returns its path.
	Transcode(ctx context.Context, input string, format domain.AudioFormat) (string, error)
}

// Analysis holds derived musical attributes. Either field may be nil.
type Analysis struct {
	Tempo *float64 `json:"bpm,omitempty"`
	Key   *string  `json:"key,omitempty"`
}

// Empty reports whether nothing was detected.
func (a Analysis) Empty() bool {
	return a.Tempo == nil && a.Key == nil
}

// RoundedTempo returns the tempo rounded to whole beats per minute.
func (a Analysis) RoundedTempo() *int {
	if a.Tempo == nil {
		return nil
	}
	v := int(*a.Tempo + 0.5)
	return &v
}

// Analyzer extracts tempo and key. Implementations never fail; anything
// that goes wrong yields an empty Analysis.
type Analyzer interface {
	Analyze(ctx context.Context, path string) Analysis
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, path string) Analysis

// Analyze calls f.
func (f AnalyzerFunc) Analyze(ctx context.Context, path string) Analysis {
	return f(ctx, path)
}
