package driven

import (
	"context"
	"time"

	"github.com/publica-labs/publica-core/internal/core/domain"
)

// ConnectionStore persists credential records, one per (user, provider).
//
// Writes are compare-and-swap: Save only succeeds if the stored record's
// UpdatedAt still equals prevUpdatedAt. Two refresh attempts racing on the
// same record can therefore never both win; the loser re-reads and retries.
type ConnectionStore interface {
	// Load retrieves the record for (user, provider), with decrypted
	// secrets. Returns domain.ErrNotFound if no record exists.
	Load(ctx context.Context, userID string, provider domain.ProviderType) (*domain.Connection, error)

	// Save writes the whole record atomically. prevUpdatedAt is the
	// UpdatedAt the caller read; a zero time means "create, must not
	// already exist". Returns domain.ErrStaleRecord when the stored
	// version no longer matches.
	//
	// The store stamps conn.UpdatedAt with a fresh timestamp on success.
	Save(ctx context.Context, conn *domain.Connection, prevUpdatedAt time.Time) error

	// List returns all records for a user (secrets not included).
	List(ctx context.Context, userID string) ([]*domain.ConnectionStatus, error)

	// ListExpiring returns connected records whose access token expires
	// before the cutoff and which carry a refresh token. Used by the
	// background refresh sweep.
	ListExpiring(ctx context.Context, cutoff time.Time) ([]*domain.Connection, error)

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, userID string, provider domain.ProviderType) error
}
