package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/publica-labs/publica-core/internal/core/domain"
)

// mockUserStore implements driven.UserStore for testing
type mockUserStore struct {
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]*domain.User),
	}
}

func (m *mockUserStore) Create(ctx context.Context, user *domain.User) error {
	if _, ok := m.byEmail[user.Email]; ok {
		return domain.ErrAlreadyExists
	}
	m.byID[user.ID] = user
	m.byEmail[user.Email] = user
	return nil
}

func (m *mockUserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

// mockAuthAdapter implements driven.AuthAdapter with trivially reversible
// hashing and token encoding.
type mockAuthAdapter struct{}

func (m *mockAuthAdapter) HashPassword(password string) (string, error) {
	return "hash:" + password, nil
}

func (m *mockAuthAdapter) VerifyPassword(password, hash string) bool {
	return hash == "hash:"+password
}

func (m *mockAuthAdapter) GenerateToken(claims *domain.TokenClaims) (string, error) {
	b, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (m *mockAuthAdapter) ParseToken(token string) (*domain.TokenClaims, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	var claims domain.TokenClaims
	if err := json.Unmarshal(b, &claims); err != nil {
		return nil, domain.ErrTokenInvalid
	}
	return &claims, nil
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewAuthService(newMockUserStore(), &mockAuthAdapter{})
	ctx := context.Background()

	summary, err := svc.Register(ctx, "Author@Example.com", "Author", "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Email != "author@example.com" {
		t.Errorf("email not normalized: %q", summary.Email)
	}

	resp, err := svc.Authenticate(ctx, domain.LoginRequest{Email: "author@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a token")
	}
	if resp.User.ID != summary.ID {
		t.Errorf("user mismatch: %q vs %q", resp.User.ID, summary.ID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewAuthService(newMockUserStore(), &mockAuthAdapter{})
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@example.com", "A", "pw"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Register(ctx, "a@example.com", "A", "pw"); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc := NewAuthService(newMockUserStore(), &mockAuthAdapter{})
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@example.com", "A", "pw"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.Authenticate(ctx, domain.LoginRequest{Email: "a@example.com", Password: "wrong"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateUnknownUser(t *testing.T) {
	svc := NewAuthService(newMockUserStore(), &mockAuthAdapter{})

	_, err := svc.Authenticate(context.Background(), domain.LoginRequest{Email: "nobody@example.com", Password: "pw"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(newMockUserStore(), &mockAuthAdapter{})
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@example.com", "A", "pw"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := svc.Authenticate(ctx, domain.LoginRequest{Email: "a@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	authCtx, err := svc.ValidateToken(ctx, resp.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if authCtx.Email != "a@example.com" {
		t.Errorf("unexpected email %q", authCtx.Email)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	svc := NewAuthService(newMockUserStore(), &mockAuthAdapter{})

	adapter := &mockAuthAdapter{}
	token, _ := adapter.GenerateToken(&domain.TokenClaims{
		UserID:    "u1",
		Email:     "a@example.com",
		IssuedAt:  time.Now().Add(-48 * time.Hour).Unix(),
		ExpiresAt: time.Now().Add(-24 * time.Hour).Unix(),
	})

	_, err := svc.ValidateToken(context.Background(), token)
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}
