package analysis

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/producer-tools/internal/media/ffmpeg"
)

const sr = DefaultSampleRate

// clickTrain places a short decaying 1 kHz burst every period samples.
func clickTrain(seconds float64, period int) []float32 {
	n := int(seconds * sr)
	out := make([]float32, n)
	burst := sr / 50
	for start := 0; start < n; start += period {
		for i := 0; i < burst && start+i < n; i++ {
			env := math.Exp(-float64(i) / float64(burst/4))
			out[start+i] = float32(0.8 * env * math.Sin(2*math.Pi*1000*float64(i)/sr))
		}
	}
	return out
}

// chord sums sines with the given frequencies and amplitudes.
func chord(seconds float64, freqs, amps []float64) []float32 {
	n := int(seconds * sr)
	out := make([]float32, n)
	for i := range out {
		var v float64
		for j, f := range freqs {
			v += amps[j] * math.Sin(2*math.Pi*f*float64(i)/sr)
		}
		out[i] = float32(v / float64(len(freqs)))
	}
	return out
}

func TestAnalyzeSamples_Tempo(t *testing.T) {
	// 22 hops per beat
	period := 22 * hopSize
	want := 60 * float64(sr) / float64(period)

	got := AnalyzeSamples(clickTrain(30, period), sr)
	require.NotNil(t, got.Tempo)
	assert.InDelta(t, want, *got.Tempo, 3)
}

func TestAnalyzeSamples_Key(t *testing.T) {
	tests := []struct {
		name  string
		freqs []float64
		want  string
	}{
		{"a major triad", []float64{220.00, 277.18, 329.63}, "A Major"},
		{"a minor triad", []float64{220.00, 261.63, 329.63}, "A Minor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeSamples(chord(5, tt.freqs, []float64{1, 0.5, 0.5}), sr)
			require.NotNil(t, got.Key)
			assert.Equal(t, tt.want, *got.Key)
		})
	}
}

func TestAnalyzeSamples_SilenceYieldsNothing(t *testing.T) {
	got := AnalyzeSamples(make([]float32, 5*sr), sr)
	assert.True(t, got.Empty())

	got = AnalyzeSamples(make([]float32, 100), sr)
	assert.True(t, got.Empty())
}

type fakeDecoder struct {
	samples []float32
	err     error
}

func (f fakeDecoder) DecodePCM(context.Context, string, int, int) ([]float32, error) {
	return f.samples, f.err
}

type fakeProber struct {
	duration string
	err      error
}

func (f fakeProber) Probe(context.Context, string) (ffmpeg.ProbeResult, error) {
	return ffmpeg.ProbeResult{Format: ffmpeg.ProbeFormat{Duration: f.duration}}, f.err
}

func TestBuiltin_SwallowsErrors(t *testing.T) {
	b := NewBuiltin(fakeDecoder{err: errors.New("decode failed")}, nil, 30)
	assert.True(t, b.Analyze(context.Background(), "x.mp3").Empty())

	b = NewBuiltin(fakeDecoder{samples: clickTrain(5, 22*hopSize)}, fakeProber{err: errors.New("probe failed")}, 30)
	assert.True(t, b.Analyze(context.Background(), "x.mp3").Empty())

	b = NewBuiltin(fakeDecoder{samples: clickTrain(5, 22*hopSize)}, fakeProber{duration: "0.5"}, 30)
	assert.True(t, b.Analyze(context.Background(), "x.mp3").Empty())
}

func TestBuiltin_AnalyzesDecodedAudio(t *testing.T) {
	b := NewBuiltin(fakeDecoder{samples: clickTrain(20, 22*hopSize)}, fakeProber{duration: "180"}, 0)
	got := b.Analyze(context.Background(), "x.mp3")
	assert.NotNil(t, got.Tempo)
}

func TestRemote_Analyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		file, _, err := r.FormFile("file")
		if assert.NoError(t, err) {
			_ = file.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bpm":128.2,"key":"F# Minor"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o600))

	got := NewRemote(RemoteConfig{BaseURL: srv.URL + "/", APIKey: "secret"}).Analyze(context.Background(), path)
	require.NotNil(t, got.Tempo)
	assert.InDelta(t, 128.2, *got.Tempo, 1e-9)
	require.NotNil(t, got.Key)
	assert.Equal(t, "F# Minor", *got.Key)
}

func TestRemote_ServerErrorYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o600))

	got := NewRemote(RemoteConfig{BaseURL: srv.URL}).Analyze(context.Background(), path)
	assert.True(t, got.Empty())
}

func TestNew(t *testing.T) {
	a, err := New(Config{Provider: "none"}, nil, nil)
	require.NoError(t, err)
	assert.True(t, a.Analyze(context.Background(), "x").Empty())

	_, err = New(Config{Provider: "builtin"}, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{Provider: "remote"}, nil, nil)
	assert.Error(t, err)

	a, err = New(Config{}, fakeDecoder{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Builtin{}, a)

	_, err = New(Config{Provider: "librosa"}, nil, nil)
	assert.Error(t, err)
}
