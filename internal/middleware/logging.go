package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// LoggerKey for storing logger in Gin context
const LoggerKey = "logger"

func Logging(baseLogger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		span := trace.SpanFromContext(c.Request.Context())
		logger := baseLogger.With(
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
		)

		c.Set(LoggerKey, logger)

		c.Next()

		level := slog.LevelInfo
		switch status := c.Writer.Status(); {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		attrs := []any{
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.Int("size", c.Writer.Size()),
		}
		if userID, ok := GetUserID(c); ok {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		logger.Log(c.Request.Context(), level, "request completed", attrs...)
	}
}

// GetLogger returns the request-scoped logger, or the default logger
// outside of a request.
func GetLogger(c *gin.Context) *slog.Logger {
	if logger, exists := c.Get(LoggerKey); exists {
		return logger.(*slog.Logger)
	}
	return slog.Default()
}
