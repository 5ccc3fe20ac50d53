package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/producer-tools/internal/domain"
	"github.com/timmy/producer-tools/internal/jobstore"
	"github.com/timmy/producer-tools/internal/logger"
	"github.com/timmy/producer-tools/internal/source"
	"golang.org/x/sync/semaphore"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrJobNotFound     = errors.New("task not found")
	ErrNotReady        = errors.New("file not ready yet")
	ErrArtifactMissing = errors.New("file no longer available")
	ErrShuttingDown    = errors.New("converter is shutting down")
)

// JobRunner drives one job to a terminal state.
type JobRunner interface {
	Run(ctx context.Context, id string) (domain.Job, error)
}

// ConverterConfig holds configuration for the converter service
type ConverterConfig struct {
	DefaultFormat domain.AudioFormat
	Formats       []domain.AudioFormat
	// MaxConcurrentJobs bounds running pipelines; zero means unbounded.
	MaxConcurrentJobs int
	// PollInterval is used by WaitFor.
	PollInterval time.Duration
}

// ConverterService accepts conversion requests and launches a pipeline for
// each one in the background. The job store it wraps is the only state
// shared between jobs.
type ConverterService struct {
	store         *jobstore.Store
	runner        JobRunner
	logger        *logger.Logger
	formats       map[domain.AudioFormat]struct{}
	defaultFormat domain.AudioFormat
	sem           *semaphore.Weighted
	pollInterval  time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool

	now   func() time.Time
	newID func() string
}

// NewConverterService creates a new converter service
func NewConverterService(
	store *jobstore.Store,
	runner JobRunner,
	log *logger.Logger,
	cfg *ConverterConfig,
) *ConverterService {
	formats := cfg.Formats
	if len(formats) == 0 {
		formats = domain.SupportedFormats
	}
	allowed := make(map[domain.AudioFormat]struct{}, len(formats))
	for _, f := range formats {
		allowed[f] = struct{}{}
	}
	def := cfg.DefaultFormat
	if def == "" {
		def = domain.FormatMP3
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	if log == nil {
		log = logger.GetDefault()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &ConverterService{
		store:         store,
		runner:        runner,
		logger:        log,
		formats:       allowed,
		defaultFormat: def,
		pollInterval:  poll,
		baseCtx:       ctx,
		cancel:        cancel,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
	}
	if cfg.MaxConcurrentJobs > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs))
	}
	return s
}

// log returns a logger from context if available, otherwise returns the service logger
func (s *ConverterService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// SubmitRequest is a conversion request.
type SubmitRequest struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

// Artifact is a finished, downloadable file.
type Artifact struct {
	Path   string
	Name   string
	Format domain.AudioFormat
	Size   int64
}

// Formats returns the enabled output formats.
func (s *ConverterService) Formats() []domain.AudioFormat {
	out := make([]domain.AudioFormat, 0, len(s.formats))
	for _, f := range domain.SupportedFormats {
		if _, ok := s.formats[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Submit validates req, registers a pending job and starts its pipeline.
// It never waits for any stage to run.
// Parameters:
//   - ctx: request context; its log fields are carried into the job.
//   - req: source URL and output format (empty selects the default).
//
// Returns:
//   - string: the new job ID.
//   - error: wraps ErrInvalidInput for validation failures; no job is created.
func (s *ConverterService) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	url := strings.TrimSpace(req.URL)
	if err := source.ValidateURL(url); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	format := s.defaultFormat
	if strings.TrimSpace(req.Format) != "" {
		f, err := domain.ParseFormat(req.Format)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		format = f
	}
	if _, ok := s.formats[format]; !ok {
		return "", fmt.Errorf("%w: format %q is not enabled", ErrInvalidInput, format)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrShuttingDown
	}

	id := s.newID()
	if err := s.store.Create(domain.NewJob(id, url, format, s.now())); err != nil {
		return "", fmt.Errorf("failed to register job: %w", err)
	}

	jobCtx := logger.SetJobID(s.log(ctx).WithContext(s.baseCtx), id)
	s.wg.Add(1)
	go s.run(jobCtx, id)

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldJobID:  id,
		logger.FieldFormat: string(format),
	}).Info("Conversion job accepted")
	return id, nil
}

func (s *ConverterService) run(ctx context.Context, id string) {
	defer s.wg.Done()

	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.abandon(ctx, id)
			return
		}
		defer s.sem.Release(1)
	}

	if _, err := s.runner.Run(ctx, id); err != nil {
		s.log(ctx).WithError(err).Error("Pipeline ended without a recorded outcome")
	}
}

// abandon fails a job that never got a slot before shutdown.
func (s *ConverterService) abandon(ctx context.Context, id string) {
	jobErr := domain.JobError{Class: domain.FailureUnknown, Message: "conversion interrupted"}
	if _, err := s.store.Update(id, func(j domain.Job) (domain.Job, error) {
		return j.Fail(jobErr, "Error during conversion", s.now())
	}); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to mark queued job as interrupted")
	}
}

// Poll returns the current snapshot of a job.
func (s *ConverterService) Poll(id string) (domain.Job, error) {
	job, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return domain.Job{}, ErrJobNotFound
		}
		return domain.Job{}, err
	}
	return job, nil
}

// FetchResult returns the finished artifact of a completed job.
// Returns ErrJobNotFound, ErrNotReady for any job that has not completed,
// or ErrArtifactMissing when the file was removed from disk.
func (s *ConverterService) FetchResult(id string) (Artifact, error) {
	job, err := s.Poll(id)
	if err != nil {
		return Artifact{}, err
	}
	if job.State != domain.StateCompleted {
		return Artifact{}, ErrNotReady
	}
	info, err := os.Stat(job.Result)
	if err != nil || info.IsDir() {
		return Artifact{}, ErrArtifactMissing
	}
	return Artifact{
		Path:   job.Result,
		Name:   filepath.Base(job.Result),
		Format: job.Format,
		Size:   info.Size(),
	}, nil
}

// List returns every known job, newest first.
func (s *ConverterService) List() []domain.Job {
	return s.store.List()
}

// WaitFor polls a job until it is terminal or ctx ends.
func (s *ConverterService) WaitFor(ctx context.Context, id string, onChange func(domain.Job)) (domain.Job, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var last domain.Job
	for {
		job, err := s.Poll(id)
		if err != nil {
			return domain.Job{}, err
		}
		if onChange != nil && (job.State != last.State || job.Progress != last.Progress || job.Message != last.Message) {
			onChange(job)
		}
		last = job
		if job.State.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown stops accepting jobs, cancels running pipelines and waits for
// them to record their outcome or for ctx to end.
func (s *ConverterService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
