package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/producer-tools/internal/domain"
	"github.com/timmy/producer-tools/internal/jobstore"
)

const videoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// runnerFunc adapts a function to JobRunner.
type runnerFunc func(ctx context.Context, id string) (domain.Job, error)

func (f runnerFunc) Run(ctx context.Context, id string) (domain.Job, error) {
	return f(ctx, id)
}

func completeJob(t *testing.T, store *jobstore.Store, id, result string) domain.Job {
	t.Helper()
	now := time.Now()
	steps := []struct {
		state    domain.JobState
		progress int
	}{
		{domain.StateFetching, domain.ProgressFetchStart},
		{domain.StateTranscoding, domain.ProgressTranscodeStart},
		{domain.StateAnalyzing, domain.ProgressAnalyzeStart},
		{domain.StateFinalizing, domain.ProgressFinalizeStart},
	}
	for _, step := range steps {
		_, err := store.Update(id, func(j domain.Job) (domain.Job, error) {
			return j.Advance(step.state, step.progress, string(step.state), now)
		})
		require.NoError(t, err)
	}
	job, err := store.Update(id, func(j domain.Job) (domain.Job, error) {
		return j.Complete(result, "Ready for download", now)
	})
	require.NoError(t, err)
	return job
}

func newService(t *testing.T, runner JobRunner, cfg *ConverterConfig) (*ConverterService, *jobstore.Store) {
	t.Helper()
	if cfg == nil {
		cfg = &ConverterConfig{}
	}
	cfg.PollInterval = 5 * time.Millisecond
	store := jobstore.New()
	svc := NewConverterService(store, runner, nil, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, store
}

func idleRunner() JobRunner {
	return runnerFunc(func(ctx context.Context, id string) (domain.Job, error) {
		<-ctx.Done()
		return domain.Job{}, nil
	})
}

func TestSubmit_RejectsInvalidInputWithoutCreatingJob(t *testing.T) {
	svc, store := newService(t, idleRunner(), &ConverterConfig{
		Formats: []domain.AudioFormat{domain.FormatMP3, domain.FormatWAV},
	})

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"empty url", SubmitRequest{URL: "  "}},
		{"not youtube", SubmitRequest{URL: "https://example.com/watch?v=dQw4w9WgXcQ"}},
		{"playlist", SubmitRequest{URL: "https://www.youtube.com/playlist?list=PL1234567890"}},
		{"unknown format", SubmitRequest{URL: videoURL, Format: "aac"}},
		{"disabled format", SubmitRequest{URL: videoURL, Format: "flac"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Zero(t, store.Len())
}

func TestSubmit_ReturnsImmediatelyWithPendingJob(t *testing.T) {
	release := make(chan struct{})
	svc, _ := newService(t, runnerFunc(func(ctx context.Context, id string) (domain.Job, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return domain.Job{}, nil
	}), nil)
	defer close(release)

	id, err := svc.Submit(context.Background(), SubmitRequest{URL: videoURL})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := svc.Poll(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, job.State)
	assert.Equal(t, domain.FormatMP3, job.Format)
	assert.Equal(t, 0, job.Progress)
	assert.Nil(t, job.Error)
	assert.Empty(t, job.Result)
}

func TestPoll_UnknownID(t *testing.T) {
	svc, _ := newService(t, idleRunner(), nil)
	_, err := svc.Poll("does-not-exist")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = svc.FetchResult("does-not-exist")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestFetchResult(t *testing.T) {
	dir := t.TempDir()
	var store *jobstore.Store
	svc, store := newService(t, runnerFunc(func(_ context.Context, id string) (domain.Job, error) {
		path := filepath.Join(dir, id+".wav")
		if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
			return domain.Job{}, err
		}
		return completeJob(t, store, id, path), nil
	}), nil)

	id, err := svc.Submit(context.Background(), SubmitRequest{URL: videoURL, Format: "WAV"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var seen []domain.JobState
	job, err := svc.WaitFor(ctx, id, func(j domain.Job) { seen = append(seen, j.State) })
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, job.State)
	assert.Equal(t, domain.StateCompleted, seen[len(seen)-1])

	art, err := svc.FetchResult(id)
	require.NoError(t, err)
	assert.Equal(t, id+".wav", art.Name)
	assert.Equal(t, domain.FormatWAV, art.Format)
	assert.Equal(t, int64(4), art.Size)

	require.NoError(t, os.Remove(art.Path))
	_, err = svc.FetchResult(id)
	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestFetchResult_NotReady(t *testing.T) {
	svc, store := newService(t, idleRunner(), nil)
	id, err := svc.Submit(context.Background(), SubmitRequest{URL: videoURL})
	require.NoError(t, err)

	_, err = svc.FetchResult(id)
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = store.Update(id, func(j domain.Job) (domain.Job, error) {
		return j.Fail(domain.JobError{Class: domain.FailureNotFound, Message: "gone"}, "Error", time.Now())
	})
	require.NoError(t, err)
	_, err = svc.FetchResult(id)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSubmit_BoundedConcurrency(t *testing.T) {
	var running, peak int32
	var wg sync.WaitGroup
	wg.Add(3)
	svc, _ := newService(t, runnerFunc(func(ctx context.Context, id string) (domain.Job, error) {
		defer wg.Done()
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return domain.Job{}, nil
	}), &ConverterConfig{MaxConcurrentJobs: 1})

	for i := 0; i < 3; i++ {
		_, err := svc.Submit(context.Background(), SubmitRequest{URL: videoURL})
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestShutdown_CancelsRunningAndRejectsNewJobs(t *testing.T) {
	stopped := make(chan struct{})
	svc, _ := newService(t, runnerFunc(func(ctx context.Context, id string) (domain.Job, error) {
		<-ctx.Done()
		close(stopped)
		return domain.Job{}, nil
	}), nil)

	_, err := svc.Submit(context.Background(), SubmitRequest{URL: videoURL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	select {
	case <-stopped:
	default:
		t.Fatal("runner context was not cancelled")
	}

	_, err = svc.Submit(context.Background(), SubmitRequest{URL: videoURL})
	assert.True(t, errors.Is(err, ErrShuttingDown))
}

func TestShutdown_FailsQueuedJobs(t *testing.T) {
	started := make(chan string, 2)
	svc, _ := newService(t, runnerFunc(func(ctx context.Context, id string) (domain.Job, error) {
		started <- id
		<-ctx.Done()
		return domain.Job{}, nil
	}), &ConverterConfig{MaxConcurrentJobs: 1})

	first, err := svc.Submit(context.Background(), SubmitRequest{URL: videoURL})
	require.NoError(t, err)
	second, err := svc.Submit(context.Background(), SubmitRequest{URL: videoURL})
	require.NoError(t, err)

	running := <-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	queued := second
	if running == second {
		queued = first
	}
	job, err := svc.Poll(queued)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, job.State)
	require.NotNil(t, job.Error)
	assert.Equal(t, "conversion interrupted", job.Error.Message)

	job, err = svc.Poll(running)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, job.State)
}

func TestFormats(t *testing.T) {
	svc, _ := newService(t, idleRunner(), &ConverterConfig{
		Formats: []domain.AudioFormat{domain.FormatOpus, domain.FormatMP3},
	})
	assert.Equal(t, []domain.AudioFormat{domain.FormatMP3, domain.FormatOpus}, svc.Formats())
}
