package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/publica-labs/publica-core/internal/core/domain"
	"github.com/publica-labs/publica-core/internal/core/ports/driven"
)

// Ensure ParkedPublishStore implements the driven port
var _ driven.ParkedPublishStore = (*ParkedPublishStore)(nil)

// ParkedPublishStore holds deferred publish requests in PostgreSQL.
// Used when Redis is not configured; the semantics are identical.
type ParkedPublishStore struct {
	db *DB
}

// NewParkedPublishStore creates a new PostgreSQL parked publish store.
func NewParkedPublishStore(db *DB) *ParkedPublishStore {
	return &ParkedPublishStore{db: db}
}

// Park stores the request, replacing any existing one for the pair.
func (s *ParkedPublishStore) Park(ctx context.Context, parked *domain.ParkedPublish) error {
	query := `
		INSERT INTO parked_publishes (user_id, provider, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, provider)
		DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at`

	_, err := s.db.ExecContext(ctx, query,
		parked.UserID, string(parked.Provider), []byte(parked.Payload), parked.CreatedAt)
	if err != nil {
		return fmt.Errorf("park publish: %w", err)
	}
	return nil
}

// Take atomically pops the parked request. Returns nil, nil when empty.
func (s *ParkedPublishStore) Take(ctx context.Context, userID string, provider domain.ProviderType) (*domain.ParkedPublish, error) {
	query := `
		DELETE FROM parked_publishes
		WHERE user_id = $1 AND provider = $2
		RETURNING user_id, provider, payload, created_at`

	var (
		parked  domain.ParkedPublish
		prov    string
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, query, userID, string(provider)).Scan(
		&parked.UserID, &prov, &payload, &parked.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take parked publish: %w", err)
	}
	parked.Provider = domain.ProviderType(prov)
	parked.Payload = domain.PublishPayload(payload)
	return &parked, nil
}

// Discard drops any parked request for the pair.
func (s *ParkedPublishStore) Discard(ctx context.Context, userID string, provider domain.ProviderType) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM parked_publishes WHERE user_id = $1 AND provider = $2`,
		userID, string(provider))
	if err != nil {
		return fmt.Errorf("discard parked publish: %w", err)
	}
	return nil
}
