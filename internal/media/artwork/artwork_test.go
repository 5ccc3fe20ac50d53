package artwork

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/producer-tools/internal/domain"
)

type recordingAttacher struct {
	audio string
	cover []byte
}

func (r *recordingAttacher) AttachCover(_ context.Context, audio, cover string) error {
	r.audio = audio
	data, err := os.ReadFile(cover)
	r.cover = data
	return err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestEmbed_ReencodesAndAttaches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes(t))
	}))
	defer srv.Close()

	dir := t.TempDir()
	audio := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("audio"), 0o600))

	att := &recordingAttacher{}
	err := New(Config{}, att).Embed(context.Background(), audio, srv.URL+"/thumb.png", domain.FormatMP3)
	require.NoError(t, err)

	assert.Equal(t, audio, att.audio)
	_, err = jpeg.Decode(bytes.NewReader(att.cover))
	assert.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, coverFileName))
}

func TestEmbed_UnsupportedFormat(t *testing.T) {
	err := New(Config{}, &recordingAttacher{}).Embed(context.Background(), "x.wav", "http://example.invalid/x.jpg", domain.FormatWAV)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestEmbed_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	att := &recordingAttacher{}
	err := New(Config{}, att).Embed(context.Background(), filepath.Join(t.TempDir(), "a.flac"), srv.URL, domain.FormatFLAC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Empty(t, att.audio)
}

func TestToJPEG_RejectsGarbage(t *testing.T) {
	_, err := ToJPEG([]byte("not an image"), 90)
	assert.Error(t, err)
}
