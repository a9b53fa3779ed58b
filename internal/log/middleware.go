package log

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// WithContext returns a copy of ctx carrying logger.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// Middleware stores a request-scoped logger, tagged with the request id, in
// the request context and logs the start and outcome of every request.
// The level of the completion line follows the status code.
func Middleware(logger *Logger, requestID func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLogger := logger.WithComponent(ComponentHTTP)
		if requestID != nil {
			if id := requestID(c); id != "" {
				reqLogger = reqLogger.With(FieldRequestID, id)
			}
		}
		ctx := WithContext(c.Request.Context(), reqLogger)
		c.Request = c.Request.WithContext(ctx)

		r := c.Request
		reqLogger.DebugContext(ctx, "HTTP request started",
			NewFields().
				WithHTTPRequest(r.Method, r.URL.Path, c.FullPath(), r.URL.RawQuery, r.UserAgent()).
				WithClientIP(c.ClientIP()).
				ToSlice()...)

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		fields := NewFields().
			WithHTTPRequest(r.Method, r.URL.Path, c.FullPath(), r.URL.RawQuery, "").
			WithHTTPResponse(status, time.Since(start).Milliseconds()).
			WithClientIP(c.ClientIP()).
			WithComponent(reqLogger.Component())
		if len(c.Errors) > 0 {
			fields[FieldError] = c.Errors.String()
		}
		reqLogger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
	}
}
