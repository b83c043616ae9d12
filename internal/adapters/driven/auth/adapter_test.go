package auth

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/publica-labs/publica-core/internal/core/domain"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	adapter := NewAdapterWithCost("secret", bcrypt.MinCost)

	hash, err := adapter.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !adapter.VerifyPassword("hunter2", hash) {
		t.Error("correct password rejected")
	}
	if adapter.VerifyPassword("wrong", hash) {
		t.Error("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	adapter := NewAdapter("signing-secret")

	claims := &domain.TokenClaims{
		UserID:    "u1",
		Email:     "a@example.com",
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}

	token, err := adapter.GenerateToken(claims)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	parsed, err := adapter.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if parsed.UserID != "u1" || parsed.Email != "a@example.com" {
		t.Errorf("unexpected claims %+v", parsed)
	}
	if parsed.ExpiresAt != claims.ExpiresAt {
		t.Errorf("expiry mismatch: %d vs %d", parsed.ExpiresAt, claims.ExpiresAt)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	signer := NewAdapter("right-secret")
	verifier := NewAdapter("wrong-secret")

	token, err := signer.GenerateToken(&domain.TokenClaims{
		UserID:    "u1",
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := verifier.ParseToken(token); err == nil {
		t.Error("token with wrong signature accepted")
	}
}

func TestParseTokenGarbage(t *testing.T) {
	adapter := NewAdapter("secret")
	if _, err := adapter.ParseToken("not.a.jwt"); err == nil {
		t.Error("garbage token accepted")
	}
}
