package logger

import (
	"context"
	"sync/atomic"
)

type contextKey struct{}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(New(nil))
}

// GetDefault returns the process-wide logger used when a context carries none.
func GetDefault() *Logger {
	return defaultLogger.Load()
}

// SetDefaultLogger replaces the process-wide logger. Nil is ignored.
func SetDefaultLogger(l *Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}

// WithContext returns a copy of ctx carrying l.
// Parameters:
//   - ctx: parent context.
//
// Returns:
//   - context.Context: context whose FromContext yields l.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*Logger); ok {
			return l
		}
	}
	return GetDefault()
}

// WithField returns ctx with one more field on its logger.
func WithField(ctx context.Context, key string, value interface{}) context.Context {
	return FromContext(ctx).WithField(key, value).WithContext(ctx)
}

// WithFields returns ctx with fields added to its logger.
func WithFields(ctx context.Context, fields Fields) context.Context {
	return FromContext(ctx).WithFields(fields).WithContext(ctx)
}

// SetRequestID tags ctx with the HTTP request id.
func SetRequestID(ctx context.Context, id string) context.Context {
	return WithField(ctx, FieldRequestID, id)
}

// SetJobID tags ctx with a conversion job id.
func SetJobID(ctx context.Context, id string) context.Context {
	return WithField(ctx, FieldJobID, id)
}

// SetComponent tags ctx with the emitting component.
func SetComponent(ctx context.Context, name string) context.Context {
	return WithField(ctx, FieldComponent, name)
}

// SetStage tags ctx with the pipeline stage being executed.
func SetStage(ctx context.Context, stage string) context.Context {
	return WithField(ctx, FieldStage, stage)
}

// SetStrategy tags ctx with the extraction strategy being attempted.
func SetStrategy(ctx context.Context, strategy string) context.Context {
	return WithField(ctx, FieldStrategy, strategy)
}

// GetJobID returns the job id ctx was tagged with, if any.
func GetJobID(ctx context.Context) string {
	return stringField(ctx, FieldJobID)
}

// GetStage returns the pipeline stage ctx was tagged with, if any.
func GetStage(ctx context.Context) string {
	return stringField(ctx, FieldStage)
}

func stringField(ctx context.Context, key string) string {
	s, _ := FromContext(ctx).Data[key].(string)
	return s
}
