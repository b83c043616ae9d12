package driven

import (
	"context"

	"github.com/publica-labs/publica-core/internal/core/domain"
)

// UserStore handles user persistence.
type UserStore interface {
	// Create stores a new user. Returns domain.ErrAlreadyExists semantics
	// via the underlying unique constraint on email.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID. Returns domain.ErrNotFound if missing.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by email. Returns domain.ErrNotFound if missing.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// AuthAdapter handles password hashing and API token operations.
type AuthAdapter interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, hash string) bool
	GenerateToken(claims *domain.TokenClaims) (string, error)
	ParseToken(token string) (*domain.TokenClaims, error)
}
