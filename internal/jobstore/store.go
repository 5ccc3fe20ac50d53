// Package jobstore is the in-memory registry of conversion job snapshots.
package jobstore

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/timmy/producer-tools/internal/domain"
)

const shardCount = 32

var (
	ErrNotFound  = errors.New("job not found")
	ErrDuplicate = errors.New("job already exists")
)

// Observer is notified after every successful write. prev is the zero Job
// on Create. Observers run on the writer's goroutine, outside any lock.
type Observer func(prev, next domain.Job)

type shard struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
}

// Store maps job ids to their latest snapshot. Snapshots are values, so a
// caller holding one never sees later writes.
type Store struct {
	shards [shardCount]*shard

	obsMu     sync.RWMutex
	observers []Observer
}

// New creates an empty Store.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{jobs: make(map[string]domain.Job)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}

// Observe registers fn for all subsequent writes.
func (s *Store) Observe(fn Observer) {
	if fn == nil {
		return
	}
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	s.obsMu.Unlock()
}

func (s *Store) notify(prev, next domain.Job) {
	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(prev, next)
	}
}

// Create registers a new job.
func (s *Store) Create(job domain.Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job %s: %w", job.ID, err)
	}
	sh := s.shardFor(job.ID)
	sh.mu.Lock()
	if _, exists := sh.jobs[job.ID]; exists {
		sh.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicate, job.ID)
	}
	sh.jobs[job.ID] = job
	sh.mu.Unlock()

	s.notify(domain.Job{}, job)
	return nil
}

// Get returns the current snapshot of a job.
func (s *Store) Get(id string) (domain.Job, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	job, ok := sh.jobs[id]
	sh.mu.RUnlock()
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job, nil
}

// Update replaces a job with the value fn derives from the current one.
// fn runs under the shard lock and must not call back into the Store. An
// error from fn aborts the write. Terminal jobs are never handed to fn.
func (s *Store) Update(id string, fn func(domain.Job) (domain.Job, error)) (domain.Job, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	prev, ok := sh.jobs[id]
	if !ok {
		sh.mu.Unlock()
		return domain.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if prev.State.IsTerminal() {
		sh.mu.Unlock()
		return prev, fmt.Errorf("%w: %s is %s", domain.ErrJobTerminal, id, prev.State)
	}
	next, err := fn(prev)
	if err == nil {
		err = checkWrite(prev, next)
	}
	if err != nil {
		sh.mu.Unlock()
		return prev, err
	}
	sh.jobs[id] = next
	sh.mu.Unlock()

	s.notify(prev, next)
	return next, nil
}

func checkWrite(prev, next domain.Job) error {
	if next.ID != prev.ID {
		return fmt.Errorf("job id changed from %s to %s", prev.ID, next.ID)
	}
	if next.Progress < prev.Progress {
		return fmt.Errorf("%w: %d -> %d", domain.ErrProgressRegression, prev.Progress, next.Progress)
	}
	if next.State != prev.State && !prev.State.CanTransition(next.State) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, prev.State, next.State)
	}
	return next.Validate()
}

// List returns every job, newest first.
func (s *Store) List() []domain.Job {
	var out []domain.Job
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, job := range sh.jobs {
			out = append(out, job)
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of jobs held.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.jobs)
		sh.mu.RUnlock()
	}
	return n
}
