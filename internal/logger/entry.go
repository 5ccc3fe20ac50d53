package logger

import (
	"context"
	"time"
)

// Entry carries metric fields (duration_ms, attempt, size) that are added to
// a single log line rather than to the context.
//
//	logger.With(logger.Fields{logger.FieldFormat: "mp3"}).
//		WithDuration(time.Since(start)).
//		Info(ctx, "Transcode completed")
type Entry struct {
	fields Fields
}

// With starts an Entry with fields.
func With(fields Fields) *Entry {
	return (&Entry{}).With(fields)
}

// With returns a copy of e with fields merged in.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

// WithDuration records d in milliseconds.
func (e *Entry) WithDuration(d time.Duration) *Entry {
	return e.With(Fields{FieldDurationMs: d.Milliseconds()})
}

// WithSize records a byte count.
func (e *Entry) WithSize(size int64) *Entry {
	return e.With(Fields{FieldSize: size})
}

// WithStatus records an outcome label.
func (e *Entry) WithStatus(status string) *Entry {
	return e.With(Fields{FieldStatus: status})
}

// WithAttempt records a 1-based attempt number.
func (e *Entry) WithAttempt(attempt int) *Entry {
	return e.With(Fields{FieldAttempt: attempt})
}

func (e *Entry) logger(ctx context.Context) *Logger {
	return FromContext(ctx).WithFields(e.fields)
}

// Debug logs at Debug level with the context's and the entry's fields.
func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.logger(ctx).Debugf(format, args...)
}

// Info logs at Info level with the context's and the entry's fields.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.logger(ctx).Infof(format, args...)
}

// Warn logs at Warn level with the context's and the entry's fields.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.logger(ctx).Warnf(format, args...)
}

// Error logs at Error level with the context's and the entry's fields.
func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.logger(ctx).Errorf(format, args...)
}
