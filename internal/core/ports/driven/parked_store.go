package driven

import (
	"context"

	"github.com/publica-labs/publica-core/internal/core/domain"
)

// ParkedPublishStore holds at most one deferred publish request per
// (user, provider) pair.
//
// Parking is last-one-wins: a second park for the same key silently replaces
// the first. Take is an atomic pop so a parked request can only ever be
// resumed once.
type ParkedPublishStore interface {
	// Park stores the request, overwriting any existing one for the
	// same (user, provider).
	Park(ctx context.Context, parked *domain.ParkedPublish) error

	// Take atomically removes and returns the parked request.
	// Returns nil, nil when nothing is parked.
	Take(ctx context.Context, userID string, provider domain.ProviderType) (*domain.ParkedPublish, error)

	// Discard drops any parked request without returning it, e.g. when
	// the user cancels reconnection or disconnects the provider.
	Discard(ctx context.Context, userID string, provider domain.ProviderType) error
}
