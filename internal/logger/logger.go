package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// rotating is the open log file, closed by Sync.
var (
	rotating   io.Closer
	rotatingMu sync.Mutex
)

// Logger wraps logrus.Entry to provide structured logging with context support.
type Logger struct {
	*logrus.Entry
}

// New creates a Logger from cfg.
// Parameters:
//   - cfg: logger configuration; nil uses DefaultConfig.
//
// Returns:
//   - *Logger: logger tagged with the service name.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	base := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)
	base.SetReportCaller(true)
	base.SetFormatter(newFormatter(cfg.Format))
	base.SetOutput(openOutput(cfg))

	return &Logger{Entry: base.WithField("service", cfg.ServiceName)}
}

// NewDefault creates a Logger from the environment. Call Sync before exit
// when it may write to a file.
func NewDefault() *Logger {
	return New(ConfigFromEnv())
}

func openOutput(cfg *Config) io.Writer {
	if cfg.Output != nil {
		return cfg.Output
	}
	if !cfg.writesFile() {
		return os.Stdout
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.Rotation.MaxSizeMB,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAgeDays,
		Compress:   cfg.Rotation.Compress,
	}
	rotatingMu.Lock()
	rotating = file
	rotatingMu.Unlock()

	if cfg.FileOnly {
		return file
	}
	return io.MultiWriter(os.Stdout, file)
}

// Sync closes the rotating log file, if any.
func Sync() error {
	rotatingMu.Lock()
	defer rotatingMu.Unlock()
	if rotating == nil {
		return nil
	}
	err := rotating.Close()
	rotating = nil
	return err
}

// WithFields returns a derived Logger carrying fields.
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

// WithField returns a derived Logger carrying one more field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithError returns a derived Logger carrying err.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}

func newFormatter(format string) logrus.Formatter {
	if strings.EqualFold(format, "text") {
		return &logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  timestampFormat,
			CallerPrettyfier: callerPrettyfier,
		}
	}
	return &logrus.JSONFormatter{
		TimestampFormat: timestampFormat,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
		CallerPrettyfier: callerPrettyfier,
	}
}

// callerPrettyfier shortens callers to "pkg.Func" and "file.go:line".
func callerPrettyfier(frame *runtime.Frame) (function string, file string) {
	function = frame.Function
	if idx := strings.LastIndex(function, "/"); idx != -1 {
		function = function[idx+1:]
	}
	return function, filepath.Base(frame.File) + ":" + strconv.Itoa(frame.Line)
}

// Info logs through the default logger.
func Info(format string, args ...interface{}) {
	GetDefault().Infof(format, args...)
}

// Warn logs through the default logger.
func Warn(format string, args ...interface{}) {
	GetDefault().Warnf(format, args...)
}

// Error logs through the default logger.
func Error(format string, args ...interface{}) {
	GetDefault().Errorf(format, args...)
}

// CtxDebug logs at Debug level with the context's fields.
func CtxDebug(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Debugf(format, args...)
}

// CtxInfo logs at Info level with the context's fields.
func CtxInfo(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Infof(format, args...)
}

// CtxWarn logs at Warn level with the context's fields.
func CtxWarn(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Warnf(format, args...)
}

// CtxError logs at Error level with the context's fields.
func CtxError(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Errorf(format, args...)
}
