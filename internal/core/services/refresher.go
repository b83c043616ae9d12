package services

import (
	"context"
	"fmt"
	"time"

	"github.com/publica-labs/publica-core/internal/core/domain"
	"github.com/publica-labs/publica-core/internal/core/ports/driven"
)

// RefreshOutcome classifies the result of a refresh attempt.
type RefreshOutcome string

const (
	// RefreshOutcomeRefreshed means new tokens were obtained and persisted.
	RefreshOutcomeRefreshed RefreshOutcome = "refreshed"

	// RefreshOutcomeRejected means the provider explicitly rejected the
	// refresh grant (e.g. invalid_grant). The credential is dead and the
	// user must re-authorize.
	RefreshOutcomeRejected RefreshOutcome = "rejected"

	// RefreshOutcomeTransient means the attempt failed for a retryable
	// reason (timeout, 5xx). The stored record is untouched.
	RefreshOutcomeTransient RefreshOutcome = "transient"
)

// maxCASRetries bounds how often a writer re-reads after losing a
// compare-and-swap race.
const maxCASRetries = 3

// TokenRefresher drives a refresh attempt through the provider adapter and
// persists the outcome. It never changes the record's state: classification
// is returned to the caller, who owns the transition.
type TokenRefresher struct {
	adapters driven.AdapterRegistry
	store    driven.ConnectionStore
}

// NewTokenRefresher creates a TokenRefresher.
func NewTokenRefresher(adapters driven.AdapterRegistry, store driven.ConnectionStore) *TokenRefresher {
	return &TokenRefresher{adapters: adapters, store: store}
}

// Refresh attempts to refresh conn's tokens. On success it returns the
// updated record as persisted. When a concurrent writer already refreshed
// the record, that writer's result is adopted instead of performing a
// second provider call.
func (r *TokenRefresher) Refresh(ctx context.Context, conn *domain.Connection) (*domain.Connection, RefreshOutcome, error) {
	if !conn.CanRefresh() {
		return nil, RefreshOutcomeRejected, fmt.Errorf("%w: no refresh token for %s", domain.ErrReconnectRequired, conn.Provider)
	}

	adapter, err := r.adapters.Get(conn.Provider)
	if err != nil {
		return nil, RefreshOutcomeRejected, err
	}

	token, err := adapter.RefreshToken(ctx, conn.Secrets.RefreshToken)
	if err != nil {
		if domain.IsAuthorizationError(err) {
			return nil, RefreshOutcomeRejected, err
		}
		return nil, RefreshOutcomeTransient, err
	}

	updated := applyToken(conn, token)

	prev := conn.UpdatedAt
	for attempt := 0; ; attempt++ {
		err := r.store.Save(ctx, updated, prev)
		if err == nil {
			return updated, RefreshOutcomeRefreshed, nil
		}
		if err != domain.ErrStaleRecord || attempt >= maxCASRetries {
			return nil, RefreshOutcomeTransient, fmt.Errorf("persist refreshed tokens: %w", err)
		}

		// Lost the write race. Re-read: if the winner left a usable
		// token, adopt it; otherwise rebase our tokens onto the
		// current version and retry.
		current, loadErr := r.store.Load(ctx, conn.UserID, conn.Provider)
		if loadErr != nil {
			return nil, RefreshOutcomeTransient, fmt.Errorf("re-read after stale write: %w", loadErr)
		}
		if current.State == domain.StateConnected && current.TokenStatus() == domain.TokenUsable {
			return current, RefreshOutcomeRefreshed, nil
		}
		updated = applyToken(current, token)
		prev = current.UpdatedAt
	}
}

// applyToken returns a copy of conn carrying the new tokens. An empty
// refresh token in the response keeps the previous one (not every provider
// rotates it).
func applyToken(conn *domain.Connection, token *driven.AdapterToken) *domain.Connection {
	updated := *conn
	secrets := domain.ConnectionSecrets{AccessToken: token.AccessToken}
	if token.RefreshToken != "" {
		secrets.RefreshToken = token.RefreshToken
	} else if conn.Secrets != nil {
		secrets.RefreshToken = conn.Secrets.RefreshToken
	}
	updated.Secrets = &secrets
	updated.State = domain.StateConnected
	if token.ExpiresIn > 0 {
		expiry := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
		updated.AccessTokenExpiresAt = &expiry
	} else {
		updated.AccessTokenExpiresAt = nil
	}
	return &updated
}
