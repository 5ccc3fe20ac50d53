package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/timmy/producer-tools/internal/app"
	"github.com/timmy/producer-tools/internal/config"
	"github.com/timmy/producer-tools/internal/deps"
	"github.com/timmy/producer-tools/internal/domain"
	"github.com/timmy/producer-tools/internal/logger"
	"github.com/timmy/producer-tools/internal/service"
)

// shutdownGrace bounds how long an interrupted run waits for the pipeline to
// remove its work directory.
const shutdownGrace = 10 * time.Second

type options struct {
	configPath string
	format     string
	outDir     string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "convert <url>",
		Short:         "Convert a single video URL into an annotated audio file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, opts, args[0])
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config file")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "output format ("+strings.Join(domain.FormatNames(domain.SupportedFormats), ", ")+")")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "directory to write the audio file to")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	cmd.AddCommand(newDepsCommand(opts))
	return cmd
}

func newDepsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Report whether the external binaries are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			out := cmd.OutOrStdout()
			for _, s := range statuses {
				mark := "ok"
				detail := s.Path
				if !s.Available {
					mark = "missing"
					detail = s.Detail
				}
				if s.Optional {
					mark += " (optional)"
				}
				fmt.Fprintf(out, "%-8s %-18s %s\n", s.Name, mark, detail)
			}
			if missing := deps.Missing(statuses); len(missing) > 0 {
				return fmt.Errorf("%d required dependencies missing", len(missing))
			}
			return nil
		},
	}
}

func runConvert(cmd *cobra.Command, opts *options, url string) error {
	if opts.format != "" {
		if _, err := domain.ParseFormat(opts.format); err != nil {
			return err
		}
	}
	if info, err := os.Stat(opts.outDir); err != nil || !info.IsDir() {
		return fmt.Errorf("output directory %q does not exist", opts.outDir)
	}

	cliLogger := logger.New(&logger.Config{
		Level:       opts.logLevel,
		Format:      "text",
		Output:      cmd.ErrOrStderr(),
		ServiceName: "producer-tools-cli",
	})
	logger.SetDefaultLogger(cliLogger)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	// progress is printed as it happens; pauses only help pollers
	cfg.Converter.StagePause = 0
	cfg.Converter.MaxConcurrentJobs = 0
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg, cliLogger)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownApp(ctx, a) }()

	id, err := a.Converter.Submit(ctx, service.SubmitRequest{URL: url, Format: opts.format})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	job, err := a.Converter.WaitFor(ctx, id, func(j domain.Job) {
		fmt.Fprintf(out, "[%3d%%] %-12s %s\n", j.Progress, j.State, j.Message)
	})
	if err != nil {
		return err
	}
	if job.State == domain.StateFailed {
		return jobError(job)
	}

	art, err := a.Converter.FetchResult(id)
	if err != nil {
		return err
	}
	dest := filepath.Join(opts.outDir, art.Name)
	if err := moveFile(art.Path, dest); err != nil {
		return err
	}

	fmt.Fprintf(out, "Saved %s (%s)\n", dest, humanize.Bytes(uint64(art.Size)))
	if job.PublicURL != "" {
		fmt.Fprintf(out, "Published at %s\n", job.PublicURL)
	}
	return nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdownApp stops s with a fresh deadline; ctx is usually already cancelled
// by the interrupt that ended the run.
func shutdownApp(ctx context.Context, s shutdowner) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	return s.Shutdown(ctx)
}

func jobError(job domain.Job) error {
	if job.Error == nil {
		return errors.New("conversion failed")
	}
	msg := fmt.Sprintf("conversion failed (%s): %s", job.Error.Class, job.Error.Message)
	if job.Error.Hint != "" {
		msg += "\n" + job.Error.Hint
	}
	return errors.New(msg)
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	outFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(outFile, in); err != nil {
		outFile.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy artifact: %w", err)
	}
	if err := outFile.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
