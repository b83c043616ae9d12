package driving

import (
	"context"

	"github.com/publica-labs/publica-core/internal/core/domain"
)

// AuthService authenticates API users and validates their tokens.
type AuthService interface {
	// Authenticate verifies email/password and issues a token.
	Authenticate(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error)

	// ValidateToken parses a bearer token into an auth context.
	ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error)

	// Register creates a new user account.
	Register(ctx context.Context, email, name, password string) (*domain.UserSummary, error)
}
