package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/producer-tools/internal/domain"
	"github.com/timmy/producer-tools/internal/jobstore"
)

type memoryHistory struct {
	mu      sync.Mutex
	records []domain.ConversionRecord
	err     error
}

func (m *memoryHistory) Upsert(_ context.Context, rec *domain.ConversionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, *rec)
	return nil
}

func TestHistoryRecorder_WritesTerminalTransitionsOnce(t *testing.T) {
	hist := &memoryHistory{}
	store := jobstore.New()
	store.Observe(NewHistoryRecorder(hist, time.Second).Observe)

	now := time.Now()
	require.NoError(t, store.Create(domain.NewJob("job-1", videoURL, domain.FormatMP3, now)))
	_, err := store.Update("job-1", func(j domain.Job) (domain.Job, error) {
		return j.Advance(domain.StateFetching, 10, "fetch", now)
	})
	require.NoError(t, err)
	assert.Empty(t, hist.records)

	_, err = store.Update("job-1", func(j domain.Job) (domain.Job, error) {
		return j.Fail(domain.JobError{Class: domain.FailureAccessDenied, Message: "bot check"}, "Error", now)
	})
	require.NoError(t, err)

	require.Len(t, hist.records, 1)
	assert.Equal(t, "job-1", hist.records[0].ID)
	assert.Equal(t, domain.StateFailed, hist.records[0].State)
	assert.Equal(t, domain.FailureAccessDenied, hist.records[0].ErrorClass)
}

func TestHistoryRecorder_WriteFailureIsSwallowed(t *testing.T) {
	rec := NewHistoryRecorder(&memoryHistory{err: errors.New("database is locked")}, time.Second)
	job := domain.NewJob("job-1", videoURL, domain.FormatMP3, time.Now())
	failed, err := job.Fail(domain.JobError{Message: "x"}, "Error", time.Now())
	require.NoError(t, err)

	assert.NotPanics(t, func() { rec.Observe(job, failed) })
}
