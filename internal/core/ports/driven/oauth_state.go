package driven

import (
	"context"
	"time"

	"github.com/publica-labs/publica-core/internal/core/domain"
)

// OAuthState represents a pending authorization flow.
// Used for CSRF protection: the provider must echo the state back and it is
// accepted exactly once.
type OAuthState struct {
	// State is a cryptographically random single-use token.
	State string

	// UserID and Provider identify the connection the flow belongs to.
	UserID   string
	Provider domain.ProviderType

	// RedirectURI is the callback URL the provider will redirect to.
	RedirectURI string

	CreatedAt time.Time

	// ExpiresAt is when the state expires (typically 10 minutes).
	ExpiresAt time.Time
}

// OAuthStateStore manages pending authorization state.
// States are single-use, expire after a short period, and only the most
// recent state per (user, provider) may complete: beginning a new
// authorization invalidates any earlier pending one, so a stale browser tab
// cannot finish a superseded flow.
type OAuthStateStore interface {
	// Save stores a new state after invalidating every pending state for
	// the same (user, provider) pair.
	Save(ctx context.Context, state *OAuthState) error

	// GetAndDelete atomically retrieves and deletes the state, ensuring
	// single-use semantics. Returns nil, nil if the state doesn't exist,
	// has expired, or was superseded.
	GetAndDelete(ctx context.Context, state string) (*OAuthState, error)

	// Cleanup removes expired states. Called periodically.
	Cleanup(ctx context.Context) error
}
