// Package events provides EventSink adapters for the core's lifecycle
// events.
package events

import (
	"context"
	"log/slog"

	"github.com/publica-labs/publica-core/internal/core/domain"
)

// SlogSink writes lifecycle events as structured log records. It never
// blocks and never reports failure back to the caller.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink over the given logger. A nil logger falls
// back to slog.Default().
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Emit logs the event. Failures and parked publishes are warnings, the
// rest is informational.
func (s *SlogSink) Emit(ctx context.Context, event domain.Event) {
	attrs := []any{
		slog.String("event", string(event.Type)),
		slog.String("user_id", event.UserID),
		slog.String("provider", string(event.Provider)),
	}
	if event.Outcome != "" {
		attrs = append(attrs, slog.String("outcome", event.Outcome))
	}

	switch event.Type {
	case domain.EventAuthorizationFailed,
		domain.EventTokenRefreshRejected,
		domain.EventNeedsReconnect,
		domain.EventPublishFailed,
		domain.EventPublishParked:
		s.logger.WarnContext(ctx, "lifecycle event", attrs...)
	default:
		s.logger.InfoContext(ctx, "lifecycle event", attrs...)
	}
}
