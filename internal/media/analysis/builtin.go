package analysis

import (
	"context"
	"time"

	"github.com/timmy/producer-tools/internal/logger"
	"github.com/timmy/producer-tools/internal/media"
	"github.com/timmy/producer-tools/internal/media/ffmpeg"
)

// DefaultSampleRate is the decode rate used for analysis.
const DefaultSampleRate = 22050

// minAnalysisSeconds is the shortest clip worth analysing.
const minAnalysisSeconds = 2.0

// PCMDecoder decodes audio into mono float32 samples.
type PCMDecoder interface {
	DecodePCM(ctx context.Context, input string, sampleRate, seconds int) ([]float32, error)
}

// Prober reads container metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (ffmpeg.ProbeResult, error)
}

// Builtin estimates tempo and key locally from decoded PCM.
type Builtin struct {
	decoder       PCMDecoder
	prober        Prober
	sampleSeconds int
	sampleRate    int
}

// NewBuiltin creates a Builtin analyzer. prober may be nil.
// Parameters:
//   - decoder: PCM source, normally the ffmpeg transcoder.
//   - prober: optional duration check before decoding.
//   - sampleSeconds: how much of the start of the track to analyse.
//
// Returns:
//   - *Builtin: analyzer ready for use.
func NewBuiltin(decoder PCMDecoder, prober Prober, sampleSeconds int) *Builtin {
	if sampleSeconds <= 0 {
		sampleSeconds = 30
	}
	return &Builtin{
		decoder:       decoder,
		prober:        prober,
		sampleSeconds: sampleSeconds,
		sampleRate:    DefaultSampleRate,
	}
}

// Analyze implements media.Analyzer.
func (b *Builtin) Analyze(ctx context.Context, path string) media.Analysis {
	start := time.Now()

	if b.prober != nil {
		probe, err := b.prober.Probe(ctx, path)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Audio probe failed, skipping analysis")
			return media.Analysis{}
		}
		if d := probe.DurationSeconds(); d > 0 && d < minAnalysisSeconds {
			logger.CtxWarn(ctx, "Audio too short for analysis: %.1fs", d)
			return media.Analysis{}
		}
	}

	samples, err := b.decoder.DecodePCM(ctx, path, b.sampleRate, b.sampleSeconds)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Audio decode failed, skipping analysis")
		return media.Analysis{}
	}

	result := AnalyzeSamples(samples, b.sampleRate)
	logger.With(logger.Fields{
		"detected_bpm": result.Tempo != nil,
		"detected_key": result.Key != nil,
	}).WithDuration(time.Since(start)).Info(ctx, "Audio analysis finished")
	return result
}

// AnalyzeSamples runs tempo and key estimation over mono samples.
func AnalyzeSamples(samples []float32, sampleRate int) media.Analysis {
	spec := computeSpectrogram(samples, sampleRate)
	var out media.Analysis
	if bpm, ok := estimateTempo(spec.onsetEnvelope(), spec.frameRate()); ok {
		out.Tempo = &bpm
	}
	if key, ok := estimateKey(spec.chroma()); ok {
		out.Key = &key
	}
	return out
}
