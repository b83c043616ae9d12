package driving

import (
	"context"

	"github.com/publica-labs/publica-core/internal/core/domain"
)

// ConnectionService owns the lifecycle of provider connections: starting and
// completing authorization, disconnecting, and producing a valid credential
// on demand.
type ConnectionService interface {
	// Status returns the projected connection state for one provider.
	// A missing record reports as disconnected rather than an error.
	Status(ctx context.Context, userID string, provider domain.ProviderType) (*domain.ConnectionStatus, error)

	// List returns the status of every provider in the closed set for a user.
	List(ctx context.Context, userID string) ([]*domain.ConnectionStatus, error)

	// BeginAuthorization starts (or restarts) an authorization flow.
	// Any earlier pending flow for the same (user, provider) is
	// invalidated: only the most recent state token can complete.
	BeginAuthorization(ctx context.Context, req BeginAuthorizationRequest) (*BeginAuthorizationResponse, error)

	// CompleteAuthorization consumes the echoed state token exactly once,
	// exchanges the code, and overwrites the credential record. A failed
	// exchange leaves any existing valid record untouched.
	CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (*CompleteAuthorizationResponse, error)

	// Disconnect moves the connection to disconnected and clears all
	// token material from the stored record.
	Disconnect(ctx context.Context, userID string, provider domain.ProviderType) error

	// EnsureValid returns a connection with a usable access token,
	// refreshing it first if the validator reports it expiring or
	// expired. Returns domain.ErrReconnectRequired when refresh is
	// rejected or impossible, domain.ErrNotConnected when no record
	// exists, and a transient error (state unchanged) on network failure.
	EnsureValid(ctx context.Context, userID string, provider domain.ProviderType) (*domain.Connection, error)

	// MarkNeedsReconnect records that a live provider call rejected the
	// credential. Used by the publish path for providers that give no
	// usable expiry signal.
	MarkNeedsReconnect(ctx context.Context, userID string, provider domain.ProviderType) error
}

// BeginAuthorizationRequest starts an OAuth flow.
// @Description Request to start provider authorization
type BeginAuthorizationRequest struct {
	UserID   string              `json:"-"`
	Provider domain.ProviderType `json:"provider" example:"wordpress"`
}

// BeginAuthorizationResponse carries the URL to redirect the user to.
// @Description Authorization URL and CSRF state token
type BeginAuthorizationResponse struct {
	AuthorizationURL string `json:"authorization_url" example:"https://public-api.wordpress.com/oauth2/authorize?client_id=..."`
	State            string `json:"state" example:"fzJ9rQ2m..."`
	ExpiresAt        string `json:"expires_at" example:"2024-01-15T10:10:00Z"`
}

// CompleteAuthorizationRequest is the provider callback.
// @Description Authorization callback parameters
type CompleteAuthorizationRequest struct {
	UserID   string              `json:"-"`
	Provider domain.ProviderType `json:"provider" example:"wordpress"`

	// Code is the authorization code from the provider.
	Code string `json:"code" example:"abc123"`

	// State is the CSRF token echoed by the provider.
	State string `json:"state" example:"fzJ9rQ2m..."`

	// Error is set when the provider returned an error instead of a code.
	Error            string `json:"error,omitempty" example:"access_denied"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// CompleteAuthorizationResponse reports the new connection.
// @Description Result of completing authorization
type CompleteAuthorizationResponse struct {
	// UserID is the owner resolved from the state token. Callback
	// handlers use it to resume work parked for this connection.
	UserID     string                   `json:"user_id"`
	Connection *domain.ConnectionStatus `json:"connection"`
	Message    string                   `json:"message" example:"Connected to WordPress as author@example.com"`
}
