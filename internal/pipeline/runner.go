// Package pipeline runs a single conversion job through its stages:
// fetch, transcode, analyze, finalize. Every stage boundary is published to
// the job store before the next stage starts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/timmy/producer-tools/internal/domain"
	"github.com/timmy/producer-tools/internal/fallback"
	"github.com/timmy/producer-tools/internal/logger"
	"github.com/timmy/producer-tools/internal/media"
	"github.com/timmy/producer-tools/internal/naming"
	"github.com/timmy/producer-tools/internal/source"
)

// Stage messages shown to pollers.
const (
	msgFetchStart    = "Starting download..."
	msgFetchRunning  = "Downloading video..."
	msgFetchDone     = "Download completed"
	msgTranscodeFmt  = "Converting to %s..."
	msgTranscodeDone = "Conversion completed"
	msgAnalyzeStart  = "Analyzing track: BPM & key detection..."
	msgAnalyzeDone   = "Analysis completed"
	msgFinalizeStart = "Finalizing file..."
	msgCompleted     = "Ready for download"
	msgFailed        = "Error during conversion"
	msgInterrupted   = "conversion interrupted"
)

const (
	stageFetch     = "fetch"
	stageTranscode = "transcode"
	stageAnalyze   = "analyze"
	stageFinalize  = "finalize"
)

// Store is the subset of the job store the runner writes through.
type Store interface {
	Get(id string) (domain.Job, error)
	Update(id string, fn func(domain.Job) (domain.Job, error)) (domain.Job, error)
}

// CoverEmbedder attaches artwork to a finished artifact.
type CoverEmbedder interface {
	Embed(ctx context.Context, audio, thumbnailURL string, format domain.AudioFormat) error
}

// Publisher copies a finished artifact somewhere clients can reach it.
type Publisher interface {
	Publish(ctx context.Context, jobID, localPath string, format domain.AudioFormat) (string, error)
}

// Deps are the collaborators a Runner drives. Artwork and Publisher are optional.
type Deps struct {
	Store      Store
	Fetcher    source.Fetcher
	Transcoder media.Transcoder
	Analyzer   media.Analyzer
	Engine     *fallback.Engine
	Artwork    CoverEmbedder
	Publisher  Publisher
}

// Config controls where jobs run and how they are paced.
type Config struct {
	WorkDir    string
	Strategies []domain.ExtractionStrategy
	// StagePause is waited after each published stage so pollers can see it.
	StagePause time.Duration
	// Now overrides the clock used for snapshot timestamps.
	Now func() time.Time
}

// Runner executes conversion jobs. It is safe for concurrent use; each Run
// call owns exactly one job.
type Runner struct {
	deps       Deps
	workDir    string
	strategies []domain.ExtractionStrategy
	pause      time.Duration
	now        func() time.Time
}

// New validates deps and returns a Runner.
func New(deps Deps, cfg Config) (*Runner, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Fetcher == nil:
		return nil, errors.New("pipeline: fetcher is required")
	case deps.Transcoder == nil:
		return nil, errors.New("pipeline: transcoder is required")
	case deps.Engine == nil:
		return nil, errors.New("pipeline: fallback engine is required")
	case cfg.WorkDir == "":
		return nil, errors.New("pipeline: work dir is required")
	case len(cfg.Strategies) == 0:
		return nil, fallback.ErrNoStrategies
	}
	if deps.Analyzer == nil {
		deps.Analyzer = media.AnalyzerFunc(func(context.Context, string) media.Analysis {
			return media.Analysis{}
		})
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		deps:       deps,
		workDir:    cfg.WorkDir,
		strategies: append([]domain.ExtractionStrategy(nil), cfg.Strategies...),
		pause:      cfg.StagePause,
		now:        now,
	}, nil
}

// JobDir returns the directory holding a job's files.
func (r *Runner) JobDir(id string) string {
	return filepath.Join(r.workDir, id)
}

// failure is a stage error carrying the job-facing description.
type failure struct {
	stage  string
	jobErr domain.JobError
	err    error
}

func (f *failure) Error() string {
	return fmt.Sprintf("%s: %s", f.stage, f.jobErr.Message)
}

func (f *failure) Unwrap() error {
	return f.err
}

var errNoMedia = errors.New("fetcher returned no media")

func newFailure(stage string, class domain.FailureClass, err error) *failure {
	return &failure{
		stage:  stage,
		jobErr: domain.JobError{Class: class, Message: err.Error(), Hint: class.Hint()},
		err:    err,
	}
}

func interruptedFailure(stage string, err error) *failure {
	return &failure{
		stage:  stage,
		jobErr: domain.JobError{Class: domain.FailureUnknown, Message: msgInterrupted},
		err:    err,
	}
}

// Run drives the job to a terminal state and returns the final snapshot.
// Conversion failures are recorded on the job, not returned; the error is
// non-nil only when the store itself rejects the job.
func (r *Runner) Run(ctx context.Context, id string) (domain.Job, error) {
	job, err := r.deps.Store.Get(id)
	if err != nil {
		return domain.Job{}, err
	}

	ctx = logger.SetJobID(ctx, id)
	ctx = logger.SetComponent(ctx, "pipeline")
	start := time.Now()

	runErr := r.execute(ctx, job)
	if runErr == nil {
		final, err := r.deps.Store.Get(id)
		if err != nil {
			return domain.Job{}, err
		}
		logger.With(logger.Fields{
			logger.FieldFormat: string(final.Format),
			"file":             filepath.Base(final.Result),
		}).WithDuration(time.Since(start)).Info(ctx, "Conversion completed")
		return final, nil
	}

	var f *failure
	if !errors.As(runErr, &f) {
		f = newFailure("store", domain.FailureUnknown, runErr)
	}
	r.cleanup(ctx, id)

	final, err := r.deps.Store.Update(id, func(j domain.Job) (domain.Job, error) {
		return j.Fail(f.jobErr, msgFailed, r.now())
	})
	logger.With(logger.Fields{
		logger.FieldStage: f.stage,
		"class":           string(f.jobErr.Class),
	}).WithDuration(time.Since(start)).Warn(ctx, "Conversion failed: %s", f.jobErr.Message)
	if err != nil {
		return final, fmt.Errorf("record failure: %w", err)
	}
	return final, nil
}

func (r *Runner) execute(ctx context.Context, job domain.Job) error {
	dir := r.JobDir(job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newFailure(stageFetch, domain.FailureUnknown, fmt.Errorf("prepare work dir: %w", err))
	}

	fetched, err := r.fetch(ctx, job, dir)
	if err != nil {
		return err
	}
	title := fetched.Metadata.Title

	output, err := r.transcode(ctx, job, fetched)
	if err != nil {
		return err
	}

	analysis, err := r.analyze(ctx, job, title, output)
	if err != nil {
		return err
	}

	final, err := r.finalize(ctx, job, dir, title, fetched, output, analysis)
	if err != nil {
		return err
	}

	if err := r.checkpoint(ctx, stageFinalize); err != nil {
		return err
	}
	_, err = r.deps.Store.Update(job.ID, func(j domain.Job) (domain.Job, error) {
		return j.Complete(final, msgCompleted, r.now())
	})
	return err
}

func (r *Runner) fetch(ctx context.Context, job domain.Job, dir string) (*source.Media, error) {
	ctx = logger.SetStage(ctx, stageFetch)
	if err := r.advance(ctx, job.ID, stageFetch, domain.StateFetching, domain.ProgressFetchStart, msgFetchStart); err != nil {
		return nil, err
	}

	req := source.Request{URL: job.SourceURL, Dir: dir, Prefix: job.ID}
	res, err := fallback.Run(ctx, r.deps.Engine, r.strategies,
		func(ctx context.Context, strategy domain.ExtractionStrategy) (*source.Media, error) {
			if err := r.report(job.ID, domain.ProgressFetchRunning, msgFetchRunning); err != nil {
				return nil, err
			}
			media, err := r.deps.Fetcher.Fetch(ctx, req, strategy)
			if err == nil && media == nil {
				return nil, fallback.NewError(domain.FailureExtractionFailed, errNoMedia)
			}
			return media, err
		})
	if err != nil {
		if ctx.Err() != nil {
			return nil, interruptedFailure(stageFetch, err)
		}
		var fe *fallback.Error
		if errors.As(err, &fe) {
			return nil, &failure{stage: stageFetch, jobErr: fe.JobError(), err: err}
		}
		return nil, newFailure(stageFetch, fallback.Classify(err), err)
	}

	fetched := res.Value
	logger.With(logger.Fields{
		logger.FieldStrategy: res.Strategy.Name,
		"title":              fetched.Metadata.Title,
	}).WithAttempt(res.Attempts).Info(ctx, "Fetched source media")

	if _, err := r.deps.Store.Update(job.ID, func(j domain.Job) (domain.Job, error) {
		next, err := j.Annotate(fetched.Metadata.Title, nil, nil, r.now())
		if err != nil {
			return j, err
		}
		return next.Report(domain.ProgressFetchDone, msgFetchDone, r.now())
	}); err != nil {
		return nil, err
	}
	r.wait(ctx)
	return fetched, nil
}

func (r *Runner) transcode(ctx context.Context, job domain.Job, fetched *source.Media) (string, error) {
	ctx = logger.SetStage(ctx, stageTranscode)
	msg := fmt.Sprintf(msgTranscodeFmt, strings.ToUpper(string(job.Format)))
	if err := r.advance(ctx, job.ID, stageTranscode, domain.StateTranscoding, domain.ProgressTranscodeStart, msg); err != nil {
		return "", err
	}

	output, err := r.deps.Transcoder.Transcode(ctx, fetched.Path, job.Format)
	if err != nil {
		if ctx.Err() != nil {
			return "", interruptedFailure(stageTranscode, err)
		}
		return "", newFailure(stageTranscode, domain.FailureTranscode, err)
	}

	if err := r.report(job.ID, domain.ProgressTranscodeDone, msgTranscodeDone); err != nil {
		return "", err
	}
	r.wait(ctx)
	return output, nil
}

func (r *Runner) analyze(ctx context.Context, job domain.Job, title, output string) (media.Analysis, error) {
	ctx = logger.SetStage(ctx, stageAnalyze)
	if err := r.advance(ctx, job.ID, stageAnalyze, domain.StateAnalyzing, domain.ProgressAnalyzeStart, msgAnalyzeStart); err != nil {
		return media.Analysis{}, err
	}

	analysis := r.deps.Analyzer.Analyze(ctx, output)
	if analysis.Empty() {
		logger.CtxInfo(ctx, "No tempo or key detected")
	}

	if _, err := r.deps.Store.Update(job.ID, func(j domain.Job) (domain.Job, error) {
		next, err := j.Annotate(title, analysis.RoundedTempo(), analysis.Key, r.now())
		if err != nil {
			return j, err
		}
		return next.Report(domain.ProgressAnalyzeDone, msgAnalyzeDone, r.now())
	}); err != nil {
		return media.Analysis{}, err
	}
	r.wait(ctx)
	return analysis, nil
}

func (r *Runner) finalize(ctx context.Context, job domain.Job, dir, title string, fetched *source.Media, output string, analysis media.Analysis) (string, error) {
	ctx = logger.SetStage(ctx, stageFinalize)
	if err := r.advance(ctx, job.ID, stageFinalize, domain.StateFinalizing, domain.ProgressFinalizeStart, msgFinalizeStart); err != nil {
		return "", err
	}

	final := filepath.Join(dir, naming.Generate(title, analysis.Tempo, analysis.Key, string(job.Format)))
	if final != output {
		if err := os.Rename(output, final); err != nil {
			return "", newFailure(stageFinalize, domain.FailureUnknown, fmt.Errorf("rename artifact: %w", err))
		}
	}

	if fetched.Path != final && fetched.Path != output {
		if err := os.Remove(fetched.Path); err != nil && !os.IsNotExist(err) {
			logger.FromContext(ctx).WithError(err).Warn("Failed to remove source media")
		}
	}

	if r.deps.Artwork != nil && job.Format.SupportsCoverArt() && fetched.Metadata.ThumbnailURL != "" {
		if err := r.deps.Artwork.Embed(ctx, final, fetched.Metadata.ThumbnailURL, job.Format); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Cover art skipped")
		}
	}

	if r.deps.Publisher != nil {
		url, err := r.deps.Publisher.Publish(ctx, job.ID, final, job.Format)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Publishing artifact failed")
		} else if _, err := r.deps.Store.Update(job.ID, func(j domain.Job) (domain.Job, error) {
			return j.WithPublicURL(url, r.now())
		}); err != nil {
			return "", err
		}
	}

	return final, nil
}

// advance checks for cancellation, then moves the job into the next stage.
func (r *Runner) advance(ctx context.Context, id, stage string, state domain.JobState, progress int, msg string) error {
	if err := r.checkpoint(ctx, stage); err != nil {
		return err
	}
	_, err := r.deps.Store.Update(id, func(j domain.Job) (domain.Job, error) {
		return j.Advance(state, progress, msg, r.now())
	})
	if err != nil {
		return err
	}
	logger.With(logger.Fields{logger.FieldStage: stage}).Debug(ctx, "Stage started")
	return nil
}

func (r *Runner) report(id string, progress int, msg string) error {
	_, err := r.deps.Store.Update(id, func(j domain.Job) (domain.Job, error) {
		return j.Report(progress, msg, r.now())
	})
	return err
}

func (r *Runner) checkpoint(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return interruptedFailure(stage, err)
	}
	return nil
}

func (r *Runner) wait(ctx context.Context) {
	if r.pause <= 0 {
		return
	}
	t := time.NewTimer(r.pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// cleanup removes every file the job produced.
func (r *Runner) cleanup(ctx context.Context, id string) {
	if err := os.RemoveAll(r.JobDir(id)); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to clean up job files")
	}
}
