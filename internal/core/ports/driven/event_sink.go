package driven

import (
	"context"

	"github.com/publica-labs/publica-core/internal/core/domain"
)

// EventSink receives structured lifecycle events. The core never logs
// directly; it emits events here and the adapter decides where they go.
// Emit must not block the caller on slow backends and must never fail the
// operation that produced the event.
type EventSink interface {
	Emit(ctx context.Context, event domain.Event)
}
