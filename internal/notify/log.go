package notify

import (
	"context"
	"log/slog"
)

// Log writes notifications to a logger. Used when no broker is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, userID, eventType string, data map[string]string) error {
	attrs := []any{"user_id", userID, "type", eventType}
	for k, v := range data {
		attrs = append(attrs, k, v)
	}
	l.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}
