package driven

import (
	"context"

	"github.com/publica-labs/publica-core/internal/core/domain"
)

// AdapterToken is the uniform token shape returned by every provider
// adapter, regardless of the provider's own response format.
type AdapterToken struct {
	AccessToken string

	// RefreshToken may be empty (provider does not rotate or support it).
	// On refresh, an empty value means "keep the previous refresh token".
	RefreshToken string

	// ExpiresIn is the token lifetime in seconds; 0 means the provider
	// reported no expiry.
	ExpiresIn int
}

// AccountInfo is display metadata fetched after authorization.
type AccountInfo map[string]string

// PublishOutcome is the provider-side result of a successful publish call.
type PublishOutcome struct {
	// URL is the public location of the published content, if known.
	URL string

	// ExternalID identifies the created resource on the provider.
	ExternalID string
}

// ProviderAdapter is the uniform capability contract one provider
// implements: build the authorization URL, exchange a code, refresh tokens,
// and perform the provider's publish call.
//
// Every network call takes a context and must run under a bounded timeout.
// Errors from ExchangeCode, RefreshToken, and Publish must be classified
// *domain.ProviderError values; a timeout or connection failure is
// transient, never an authorization failure.
type ProviderAdapter interface {
	// Type returns the provider this adapter serves.
	Type() domain.ProviderType

	// BuildAuthURL constructs the provider's authorization URL embedding
	// the CSRF state token and redirect URI.
	BuildAuthURL(state, redirectURI string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*AdapterToken, error)

	// RefreshToken obtains fresh tokens from a refresh token. A
	// ProviderError with kind authorization means the provider rejected
	// the grant (e.g. invalid_grant); transient kinds must not be
	// treated as rejection.
	RefreshToken(ctx context.Context, refreshToken string) (*AdapterToken, error)

	// FetchAccountInfo retrieves display metadata for the connected
	// account. Informational only; failures here do not fail the flow.
	FetchAccountInfo(ctx context.Context, accessToken string) (AccountInfo, error)

	// Publish performs the provider's publish call with the given
	// access token and opaque payload.
	Publish(ctx context.Context, accessToken string, payload domain.PublishPayload) (*PublishOutcome, error)
}

// AdapterRegistry resolves provider adapters by type.
type AdapterRegistry interface {
	// Get returns the adapter for a provider, or domain.ErrUnsupportedProvider
	// if none is registered.
	Get(provider domain.ProviderType) (ProviderAdapter, error)

	// SupportedTypes returns all providers with a registered adapter.
	SupportedTypes() []domain.ProviderType
}
