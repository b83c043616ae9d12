package driving

import (
	"context"

	"github.com/publica-labs/publica-core/internal/core/domain"
)

// PublishService performs auth-aware publishes. When a publish fails on
// authorization it parks the request and reports that reconnection is
// required; once the connection service completes a new authorization,
// OnReconnected resumes the parked request exactly once.
type PublishService interface {
	// Publish ensures a valid credential, performs the provider publish
	// call, and classifies the outcome. On authorization failure the
	// request is parked (last-one-wins per provider) and the result
	// carries ActionRequired = reconnect.
	Publish(ctx context.Context, req PublishRequest) (*domain.PublishResult, error)

	// OnReconnected pops the parked request for (user, provider), if
	// any, and re-runs it once. The parked request is discarded whatever
	// the retry's outcome. A second OnReconnected racing the first waits
	// rather than firing a duplicate. No-op when nothing is parked.
	OnReconnected(ctx context.Context, userID string, provider domain.ProviderType) (*domain.PublishResult, error)

	// DiscardParked drops the parked request for (user, provider), if any,
	// so it is not resumed on the next reconnection. No-op when nothing is
	// parked.
	DiscardParked(ctx context.Context, userID string, provider domain.ProviderType) error
}

// PublishRequest is a publish attempt against one provider.
// @Description Publish request with opaque payload
type PublishRequest struct {
	UserID   string                `json:"-"`
	Provider domain.ProviderType   `json:"provider" example:"wordpress"`
	Payload  domain.PublishPayload `json:"payload" swaggertype:"object"`
}
