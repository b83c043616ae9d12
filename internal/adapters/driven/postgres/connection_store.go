package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/publica-labs/publica-core/internal/core/domain"
	"github.com/publica-labs/publica-core/internal/core/ports/driven"
)

// Ensure ConnectionStore implements the driven port
var _ driven.ConnectionStore = (*ConnectionStore)(nil)

// ConnectionStore persists credential records in PostgreSQL with token
// secrets encrypted at rest. updated_at is the optimistic-concurrency
// version: every write is conditional on the value the caller read.
type ConnectionStore struct {
	db        *DB
	encryptor *SecretEncryptor
}

// NewConnectionStore creates a new PostgreSQL connection store.
func NewConnectionStore(db *DB, encryptor *SecretEncryptor) *ConnectionStore {
	return &ConnectionStore{db: db, encryptor: encryptor}
}

// Load retrieves the record for (user, provider) with decrypted secrets.
func (s *ConnectionStore) Load(ctx context.Context, userID string, provider domain.ProviderType) (*domain.Connection, error) {
	query := `
		SELECT user_id, provider, state, secrets, access_token_expires_at,
		       account_info, created_at, updated_at
		FROM provider_connections
		WHERE user_id = $1 AND provider = $2`

	conn, err := s.scanConnection(s.db.QueryRowContext(ctx, query, userID, string(provider)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	return conn, nil
}

// Save writes the whole record conditionally on prevUpdatedAt. A zero
// prevUpdatedAt means the record must not exist yet.
func (s *ConnectionStore) Save(ctx context.Context, conn *domain.Connection, prevUpdatedAt time.Time) error {
	secrets, err := s.encryptSecrets(conn.Secrets)
	if err != nil {
		return err
	}

	accountInfo, err := marshalAccountInfo(conn.AccountInfo)
	if err != nil {
		return err
	}

	// Postgres stores timestamptz with microsecond precision; truncate so
	// the stamped value round-trips exactly for the next CAS comparison.
	now := time.Now().UTC().Truncate(time.Microsecond)

	if prevUpdatedAt.IsZero() {
		query := `
			INSERT INTO provider_connections
				(user_id, provider, state, secrets, access_token_expires_at,
				 account_info, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (user_id, provider) DO NOTHING`

		res, err := s.db.ExecContext(ctx, query,
			conn.UserID, string(conn.Provider), string(conn.State), secrets,
			NullTime(conn.AccessTokenExpiresAt), accountInfo, conn.CreatedAt, now)
		if err != nil {
			return fmt.Errorf("insert connection: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert connection: %w", err)
		}
		if rows == 0 {
			return domain.ErrStaleRecord
		}
		conn.UpdatedAt = now
		return nil
	}

	query := `
		UPDATE provider_connections
		SET state = $3, secrets = $4, access_token_expires_at = $5,
		    account_info = $6, updated_at = $7
		WHERE user_id = $1 AND provider = $2 AND updated_at = $8`

	res, err := s.db.ExecContext(ctx, query,
		conn.UserID, string(conn.Provider), string(conn.State), secrets,
		NullTime(conn.AccessTokenExpiresAt), accountInfo, now, prevUpdatedAt)
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	if rows == 0 {
		return domain.ErrStaleRecord
	}
	conn.UpdatedAt = now
	return nil
}

// List returns all records for a user as API projections, without secrets.
func (s *ConnectionStore) List(ctx context.Context, userID string) ([]*domain.ConnectionStatus, error) {
	query := `
		SELECT provider, state, access_token_expires_at, account_info, updated_at
		FROM provider_connections
		WHERE user_id = $1
		ORDER BY provider`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var statuses []*domain.ConnectionStatus
	for rows.Next() {
		var (
			provider    string
			state       string
			expiresAt   sql.NullTime
			accountInfo []byte
			updatedAt   time.Time
		)
		if err := rows.Scan(&provider, &state, &expiresAt, &accountInfo, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}

		info, err := unmarshalAccountInfo(accountInfo)
		if err != nil {
			return nil, err
		}

		statuses = append(statuses, &domain.ConnectionStatus{
			Provider:    domain.ProviderType(provider),
			State:       domain.ConnectionState(state),
			AccountInfo: info,
			ExpiresAt:   TimePtr(expiresAt),
			UpdatedAt:   &updatedAt,
		})
	}
	return statuses, rows.Err()
}

// ListExpiring returns connected records whose token expires before the
// cutoff. Only records with a refresh token are candidates; that is checked
// after decryption since secrets are opaque to SQL.
func (s *ConnectionStore) ListExpiring(ctx context.Context, cutoff time.Time) ([]*domain.Connection, error) {
	query := `
		SELECT user_id, provider, state, secrets, access_token_expires_at,
		       account_info, created_at, updated_at
		FROM provider_connections
		WHERE state = 'connected'
		  AND access_token_expires_at IS NOT NULL
		  AND access_token_expires_at < $1`

	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expiring connections: %w", err)
	}
	defer rows.Close()

	var conns []*domain.Connection
	for rows.Next() {
		conn, err := s.scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expiring connection: %w", err)
		}
		if conn.CanRefresh() {
			conns = append(conns, conn)
		}
	}
	return conns, rows.Err()
}

// Delete removes the record. Deleting a missing record is not an error.
func (s *ConnectionStore) Delete(ctx context.Context, userID string, provider domain.ProviderType) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM provider_connections WHERE user_id = $1 AND provider = $2`,
		userID, string(provider))
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *ConnectionStore) scanConnection(row rowScanner) (*domain.Connection, error) {
	var (
		conn        domain.Connection
		provider    string
		state       string
		secrets     []byte
		expiresAt   sql.NullTime
		accountInfo []byte
	)
	if err := row.Scan(&conn.UserID, &provider, &state, &secrets, &expiresAt,
		&accountInfo, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
		return nil, err
	}

	conn.Provider = domain.ProviderType(provider)
	conn.State = domain.ConnectionState(state)
	conn.AccessTokenExpiresAt = TimePtr(expiresAt)

	if len(secrets) > 0 {
		var decrypted domain.ConnectionSecrets
		if err := s.encryptor.Decrypt(secrets, &decrypted); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
		conn.Secrets = &decrypted
	}

	info, err := unmarshalAccountInfo(accountInfo)
	if err != nil {
		return nil, err
	}
	conn.AccountInfo = info

	return &conn, nil
}

func (s *ConnectionStore) encryptSecrets(secrets *domain.ConnectionSecrets) ([]byte, error) {
	if secrets == nil {
		return nil, nil
	}
	blob, err := s.encryptor.Encrypt(secrets)
	if err != nil {
		return nil, fmt.Errorf("encrypt secrets: %w", err)
	}
	return blob, nil
}

func marshalAccountInfo(info map[string]string) ([]byte, error) {
	if info == nil {
		return nil, nil
	}
	b, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("marshal account info: %w", err)
	}
	return b, nil
}

func unmarshalAccountInfo(b []byte) (map[string]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var info map[string]string
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, fmt.Errorf("unmarshal account info: %w", err)
	}
	return info, nil
}
