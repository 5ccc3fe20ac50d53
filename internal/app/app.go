// Package app assembles the converter from configuration. Both the HTTP
// server and the command line tool start from Build.
package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/timmy/producer-tools/internal/config"
	"github.com/timmy/producer-tools/internal/domain"
	"github.com/timmy/producer-tools/internal/fallback"
	"github.com/timmy/producer-tools/internal/jobstore"
	"github.com/timmy/producer-tools/internal/logger"
	"github.com/timmy/producer-tools/internal/media/analysis"
	"github.com/timmy/producer-tools/internal/media/artwork"
	"github.com/timmy/producer-tools/internal/media/ffmpeg"
	"github.com/timmy/producer-tools/internal/pipeline"
	"github.com/timmy/producer-tools/internal/repository"
	"github.com/timmy/producer-tools/internal/service"
	"github.com/timmy/producer-tools/internal/source/ytdlp"
	"github.com/timmy/producer-tools/internal/storage"
)

// App holds the wired service graph.
type App struct {
	Config    *config.Config
	Store     *jobstore.Store
	Runner    *pipeline.Runner
	Converter *service.ConverterService
	// History is nil when the database is disabled.
	History *repository.JobRepository

	db *gorm.DB
}

// Build wires every component named in cfg.
// Parameters:
//   - ctx: used for startup calls such as bucket creation.
//   - cfg: validated configuration.
//   - log: base logger handed to the converter service.
//
// Returns:
//   - *App: ready to accept jobs.
//   - error: non-nil if any component fails to initialize.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	formats, err := cfg.Converter.SupportedFormats()
	if err != nil {
		return nil, err
	}
	strategies, err := cfg.Converter.ExtractionStrategies()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Converter.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	a := &App{Config: cfg, Store: jobstore.New()}

	fetcher, err := ytdlp.New(ytdlp.Config{
		Binary:        cfg.Fetcher.Binary,
		CookiesFile:   cfg.Fetcher.CookiesFile,
		CookiesBase64: cfg.Fetcher.CookiesBase64,
		WorkDir:       cfg.Converter.WorkDir,
		Timeout:       cfg.Fetcher.Timeout,
		SocketTimeout: cfg.Fetcher.SocketTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fetcher: %w", err)
	}

	transcoder := ffmpeg.New(
		ffmpeg.WithBinary(cfg.FFmpeg.Binary),
		ffmpeg.WithProbeBinary(cfg.FFmpeg.ProbeBinary),
	)

	analyzer, err := analysis.New(analysis.Config{
		Provider:      cfg.Analyzer.Provider,
		SampleSeconds: cfg.Analyzer.SampleSeconds,
		Remote: analysis.RemoteConfig{
			BaseURL: cfg.Analyzer.BaseURL,
			APIKey:  cfg.Analyzer.APIKey,
			Timeout: cfg.Analyzer.Timeout,
		},
	}, transcoder, transcoder)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analyzer: %w", err)
	}

	deps := pipeline.Deps{
		Store:      a.Store,
		Fetcher:    fetcher,
		Transcoder: transcoder,
		Analyzer:   analyzer,
		Engine:     fallback.NewEngine(cfg.Converter.StrategyDelay),
	}
	if cfg.Artwork.Enabled {
		deps.Artwork = artwork.New(artwork.Config{Timeout: cfg.Artwork.Timeout}, transcoder)
	}

	if cfg.Storage.Enabled {
		objectStorage, err := storage.NewStorage(cfg.Storage.S3Config())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
		}
		deps.Publisher = storage.NewPublisher(objectStorage, cfg.Storage.Prefix)
	}

	if cfg.Database.Enabled {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.db = db
		a.History = repository.NewJobRepository(db)
		a.Store.Observe(service.NewHistoryRecorder(a.History, 0).Observe)
	}

	a.Runner, err = pipeline.New(deps, pipeline.Config{
		WorkDir:    cfg.Converter.WorkDir,
		Strategies: strategies,
		StagePause: cfg.Converter.StagePause,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	defaultFormat, err := domain.ParseFormat(cfg.Converter.DefaultFormat)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Converter = service.NewConverterService(a.Store, a.Runner, log, &service.ConverterConfig{
		DefaultFormat:     defaultFormat,
		Formats:           formats,
		MaxConcurrentJobs: cfg.Converter.MaxConcurrentJobs,
	})

	logger.With(logger.Fields{
		logger.FieldComponent: "app",
		"formats":             len(formats),
		"strategies":          len(strategies),
		"analyzer":            cfg.Analyzer.Provider,
		"history":             cfg.Database.Enabled,
		"publish":             cfg.Storage.Enabled,
	}).Info(ctx, "Converter initialized")

	return a, nil
}

// Shutdown stops the converter, then releases the database.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.Converter != nil {
		err = a.Converter.Shutdown(ctx)
	}
	a.Close()
	return err
}

// Close releases the database handle, if any.
func (a *App) Close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	a.db = nil
}
