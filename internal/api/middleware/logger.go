package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/timmy/producer-tools/internal/logger"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const (
	loggerKey       = "logger"
	maxRequestIDLen = 64
)

// LoggerMiddleware returns a Gin middleware that injects a request-scoped logger.
// Parameters:
//   - log: base logger to enrich with request fields; nil uses the default.
//
// Returns:
//   - gin.HandlerFunc: middleware handler.
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.NewString()
		}

		ctx := c.Request.Context()
		if log != nil {
			ctx = log.WithContext(ctx)
		}
		ctx = logger.WithFields(ctx, logger.Fields{
			logger.FieldRequestID: requestID,
			logger.FieldComponent: "api",
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set(loggerKey, logger.FromContext(ctx))
		c.Header(RequestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		entry := logger.With(logger.Fields{
			"method":           c.Request.Method,
			"path":             c.FullPath(),
			logger.FieldSize:   c.Writer.Size(),
			logger.FieldStatus: status,
		}).WithDuration(time.Since(start))

		// status polling is frequent enough to drown everything else
		if status < http.StatusBadRequest && c.Request.Method == http.MethodGet {
			entry.Debug(ctx, "Request completed: %s", c.Request.URL.Path)
			return
		}
		entry.Info(ctx, "Request completed: %s %s", c.Request.Method, c.Request.URL.Path)
	}
}

// GetLogger returns the request-scoped logger set by LoggerMiddleware.
// Parameters:
//   - c: Gin request context.
//
// Returns:
//   - *logger.Logger: request-scoped logger or default logger.
func GetLogger(c *gin.Context) *logger.Logger {
	if l, ok := c.Get(loggerKey); ok {
		if log, ok := l.(*logger.Logger); ok {
			return log
		}
	}
	return logger.FromContext(c.Request.Context())
}
