package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/publica-labs/publica-core/internal/core/domain"
	"github.com/publica-labs/publica-core/internal/core/ports/driven"
)

// Ensure OAuthStateStore implements the driven port
var _ driven.OAuthStateStore = (*OAuthStateStore)(nil)

// OAuthStateStore persists pending authorization state tokens.
//
// Save deletes any earlier pending row for the same (user, provider) in the
// same transaction, so starting a new flow invalidates the old one.
// GetAndDelete pops the row atomically, making each token single-use.
type OAuthStateStore struct {
	db *DB
}

// NewOAuthStateStore creates a new PostgreSQL OAuth state store.
func NewOAuthStateStore(db *DB) *OAuthStateStore {
	return &OAuthStateStore{db: db}
}

// Save stores a pending state, invalidating prior ones for the pair.
func (s *OAuthStateStore) Save(ctx context.Context, state *driven.OAuthState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save state: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM oauth_states WHERE user_id = $1 AND provider = $2`,
		state.UserID, string(state.Provider)); err != nil {
		return fmt.Errorf("invalidate prior states: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO oauth_states (state, user_id, provider, redirect_uri, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		state.State, state.UserID, string(state.Provider),
		state.RedirectURI, state.CreatedAt, state.ExpiresAt); err != nil {
		return fmt.Errorf("insert state: %w", err)
	}

	return tx.Commit()
}

// GetAndDelete atomically consumes a state token.
// Returns nil, nil when the token is unknown, already used, or expired.
func (s *OAuthStateStore) GetAndDelete(ctx context.Context, stateToken string) (*driven.OAuthState, error) {
	query := `
		DELETE FROM oauth_states
		WHERE state = $1
		RETURNING state, user_id, provider, redirect_uri, created_at, expires_at`

	var (
		state    driven.OAuthState
		provider string
	)
	err := s.db.QueryRowContext(ctx, query, stateToken).Scan(
		&state.State, &state.UserID, &provider, &state.RedirectURI,
		&state.CreatedAt, &state.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume state: %w", err)
	}
	state.Provider = domain.ProviderType(provider)

	if time.Now().After(state.ExpiresAt) {
		return nil, nil
	}
	return &state, nil
}

// Cleanup removes expired state rows.
func (s *OAuthStateStore) Cleanup(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < NOW()`)
	if err != nil {
		return fmt.Errorf("cleanup states: %w", err)
	}
	return nil
}
