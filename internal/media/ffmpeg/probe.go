package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ProbeResult is the part of ffprobe's JSON report used here.
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream describes one stream.
type ProbeStream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// ProbeFormat is container-level metadata.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// DurationSeconds returns the container duration, or 0 when unknown.
func (r ProbeResult) DurationSeconds() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.Format.Duration), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// HasAudio reports whether any audio stream was found.
func (r ProbeResult) HasAudio() bool {
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "audio") {
			return true
		}
	}
	return false
}

// Probe runs ffprobe against path.
func (t *Transcoder) Probe(ctx context.Context, path string) (ProbeResult, error) {
	if strings.TrimSpace(path) == "" {
		return ProbeResult{}, errors.New("ffprobe: empty path")
	}
	cmd := commandContext(ctx, t.probeBinary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path) //nolint:gosec
	out, err := cmd.CombinedOutput()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(out)))
	}
	var res ProbeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return res, nil
}
