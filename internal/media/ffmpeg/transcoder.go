// Package ffmpeg drives the ffmpeg and ffprobe binaries.
package ffmpeg

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/timmy/producer-tools/internal/domain"
)

var commandContext = exec.CommandContext

// codecArgs maps each output format to its encoder flags.
var codecArgs = map[domain.AudioFormat][]string{
	domain.FormatMP3:  {"-acodec", "libmp3lame", "-q:a", "0"},
	domain.FormatWAV:  {"-acodec", "pcm_s16le", "-ar", "44100", "-ac", "2"},
	domain.FormatFLAC: {"-acodec", "flac"},
	domain.FormatOGG:  {"-acodec", "libvorbis"},
	domain.FormatM4A:  {"-acodec", "aac"},
	domain.FormatOpus: {"-acodec", "libopus"},
}

// TranscodeError is returned when ffmpeg fails or produces nothing.
type TranscodeError struct {
	Format domain.AudioFormat
	Output string
	Err    error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode to %s: %v", e.Format, e.Err)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// FailureClass marks transcode failures for the job error.
func (e *TranscodeError) FailureClass() domain.FailureClass {
	return domain.FailureTranscode
}

// Option configures a Transcoder.
type Option func(*Transcoder)

// WithBinary overrides the ffmpeg executable.
func WithBinary(binary string) Option {
	return func(t *Transcoder) {
		if strings.TrimSpace(binary) != "" {
			t.binary = strings.TrimSpace(binary)
		}
	}
}

// WithProbeBinary overrides the ffprobe executable.
func WithProbeBinary(binary string) Option {
	return func(t *Transcoder) {
		if strings.TrimSpace(binary) != "" {
			t.probeBinary = strings.TrimSpace(binary)
		}
	}
}

// Transcoder implements media.Transcoder with ffmpeg.
type Transcoder struct {
	binary      string
	probeBinary string
}

// New creates a Transcoder using "ffmpeg" and "ffprobe" from PATH unless
// overridden.
func New(opts ...Option) *Transcoder {
	t := &Transcoder{binary: "ffmpeg", probeBinary: "ffprobe"}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Binary returns the ffmpeg executable.
func (t *Transcoder) Binary() string {
	return t.binary
}

// ProbeBinary returns the ffprobe executable.
func (t *Transcoder) ProbeBinary() string {
	return t.probeBinary
}

// OutputPath returns where Transcode writes input converted to format.
func OutputPath(input string, format domain.AudioFormat) string {
	base := filepath.Base(input)
	stem := sanitizeStem(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		stem = "audio"
	}
	out := filepath.Join(filepath.Dir(input), stem+"."+string(format))
	if out == input {
		out = filepath.Join(filepath.Dir(input), stem+"-audio."+string(format))
	}
	return out
}

func sanitizeStem(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// BuildArgs returns the ffmpeg arguments for a conversion.
func BuildArgs(input, output string, format domain.AudioFormat) ([]string, error) {
	codec, ok := codecArgs[format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-i", input, "-vn"}
	args = append(args, codec...)
	args = append(args, "-y", output)
	return args, nil
}

// Transcode converts input into format and verifies the output exists.
func (t *Transcoder) Transcode(ctx context.Context, input string, format domain.AudioFormat) (string, error) {
	output := OutputPath(input, format)
	fail := func(err error) (string, error) {
		_ = os.Remove(output)
		return "", &TranscodeError{Format: format, Output: output, Err: err}
	}

	if _, err := os.Stat(input); err != nil {
		return fail(fmt.Errorf("input: %w", err))
	}
	args, err := BuildArgs(input, output, format)
	if err != nil {
		return fail(err)
	}

	cmd := commandContext(ctx, t.binary, args...) //nolint:gosec
	if out, err := cmd.CombinedOutput(); err != nil {
		return fail(fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(out))))
	}
	info, err := os.Stat(output)
	if err != nil {
		return fail(fmt.Errorf("output not created: %w", err))
	}
	if info.Size() == 0 {
		return fail(errors.New("output is empty"))
	}
	return output, nil
}

// AttachCover embeds a JPEG as the attached picture of audio, replacing the
// file in place.
func (t *Transcoder) AttachCover(ctx context.Context, audio, cover string) error {
	ext := filepath.Ext(audio)
	tmp := strings.TrimSuffix(audio, ext) + ".cover" + ext
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", audio,
		"-i", cover,
		"-map", "0:a",
		"-map", "1",
		"-c", "copy",
		"-disposition:v", "attached_pic",
	}
	if strings.EqualFold(ext, ".mp3") {
		args = append(args, "-id3v2_version", "3")
	}
	args = append(args, "-y", tmp)

	cmd := commandContext(ctx, t.binary, args...) //nolint:gosec
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("ffmpeg attach cover: %w: %s", err, strings.TrimSpace(string(out)))
	}
	if err := os.Rename(tmp, audio); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace with covered audio: %w", err)
	}
	return nil
}

// DecodePCM decodes up to seconds of input as mono float32 samples.
func (t *Transcoder) DecodePCM(ctx context.Context, input string, sampleRate, seconds int) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, errors.New("decode pcm: sample rate must be positive")
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-i", input, "-vn"}
	if seconds > 0 {
		args = append(args, "-t", strconv.Itoa(seconds))
	}
	args = append(args, "-ac", "1", "-ar", strconv.Itoa(sampleRate), "-f", "f32le", "-")

	cmd := commandContext(ctx, t.binary, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stderr = &stderr
	raw, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return bytesToFloat32(raw), nil
}

func bytesToFloat32(raw []byte) []float32 {
	n := len(raw) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}
