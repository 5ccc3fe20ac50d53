package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/producer-tools/internal/domain"
)

type memStorage struct {
	objects     map[string][]byte
	contentType map[string]string
	urlErr      error
	deleted     []string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, contentType: map[string]string{}}
}

func (m *memStorage) Upload(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.objects[key] = data
	m.contentType[key] = contentType
	return nil
}

func (m *memStorage) URL(_ context.Context, key string) (string, error) {
	if m.urlErr != nil {
		return "", m.urlErr
	}
	return "https://cdn.example.com/" + key, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	delete(m.objects, key)
	return nil
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "audio/job-1/Song.mp3", ObjectKey("/audio/", "job-1", "Song.mp3"))
	assert.Equal(t, "job-1/Song.mp3", ObjectKey("", "job-1", "Song.mp3"))
}

func TestPublisher_Publish(t *testing.T) {
	store := newMemStorage()
	file := filepath.Join(t.TempDir(), "Song-120BPM.flac")
	require.NoError(t, os.WriteFile(file, []byte("flac-data"), 0o600))

	url, err := NewPublisher(store, "audio").Publish(context.Background(), "job-1", file, domain.FormatFLAC)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/audio/job-1/Song-120BPM.flac", url)
	assert.Equal(t, []byte("flac-data"), store.objects["audio/job-1/Song-120BPM.flac"])
	assert.Equal(t, "audio/flac", store.contentType["audio/job-1/Song-120BPM.flac"])
}

func TestPublisher_URLFailureRemovesObject(t *testing.T) {
	store := newMemStorage()
	store.urlErr = errors.New("presign failed")
	file := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := NewPublisher(store, "").Publish(context.Background(), "job-2", file, domain.FormatMP3)
	require.Error(t, err)
	assert.Equal(t, []string{"job-2/a.mp3"}, store.deleted)
	assert.Empty(t, store.objects)
}

func TestPublisher_MissingFile(t *testing.T) {
	_, err := NewPublisher(newMemStorage(), "").Publish(context.Background(), "job-3", "/nonexistent/a.mp3", domain.FormatMP3)
	assert.Error(t, err)
}

func TestDetectStorageType(t *testing.T) {
	assert.Equal(t, StorageTypeR2, detectStorageType("https://abc.r2.cloudflarestorage.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType("s3.us-east-1.amazonaws.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType(""))
	assert.Equal(t, StorageTypeS3Compatible, detectStorageType("localhost:9000"))
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "localhost:9000", normalizeEndpoint("http://localhost:9000/bucket/"))
	assert.Equal(t, "s3.example.com", normalizeEndpoint("https://s3.example.com"))
}

func TestS3Storage_PublicURL(t *testing.T) {
	s, err := NewStorage(&S3Config{
		Endpoint:  "localhost:9000",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "producer",
		PublicURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)

	url, err := s.URL(context.Background(), "audio/job/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/audio/job/a.mp3", url)
	assert.Equal(t, "producer", s.Bucket())
}

func TestS3Storage_PresignedURL(t *testing.T) {
	s, err := NewStorage(&S3Config{
		Endpoint:  "localhost:9000",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "producer",
	})
	require.NoError(t, err)

	url, err := s.URL(context.Background(), "audio/job/a.mp3")
	require.NoError(t, err)
	assert.Contains(t, url, "http://localhost:9000/producer/audio/job/a.mp3")
	assert.Contains(t, url, "X-Amz-Signature=")
}
