package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/publica-labs/publica-core/internal/core/domain"
	"github.com/publica-labs/publica-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ParkedPublishStore = (*ParkedPublishStore)(nil)

const parkedPrefix = "publica:parked:"

// defaultParkedTTL bounds how long a parked request waits for reconnection.
// A request nobody reconnects for within a week is stale.
const defaultParkedTTL = 7 * 24 * time.Hour

// ParkedPublishStore holds deferred publish requests in Redis, one key per
// (user, provider). SET gives last-one-wins parking and GETDEL gives the
// atomic pop that makes resumption exactly-once.
type ParkedPublishStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewParkedPublishStore creates a new Redis-backed parked publish store.
func NewParkedPublishStore(client *redis.Client) *ParkedPublishStore {
	return &ParkedPublishStore{client: client, ttl: defaultParkedTTL}
}

func parkedKey(userID string, provider domain.ProviderType) string {
	return parkedPrefix + userID + ":" + string(provider)
}

// Park stores the request, replacing any existing one for the pair.
func (s *ParkedPublishStore) Park(ctx context.Context, parked *domain.ParkedPublish) error {
	data, err := json.Marshal(parked)
	if err != nil {
		return fmt.Errorf("marshal parked publish: %w", err)
	}

	key := parkedKey(parked.UserID, parked.Provider)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("park publish: %w", err)
	}
	return nil
}

// Take atomically pops the parked request via GETDEL.
// Returns nil, nil when nothing is parked.
func (s *ParkedPublishStore) Take(ctx context.Context, userID string, provider domain.ProviderType) (*domain.ParkedPublish, error) {
	data, err := s.client.GetDel(ctx, parkedKey(userID, provider)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take parked publish: %w", err)
	}

	var parked domain.ParkedPublish
	if err := json.Unmarshal(data, &parked); err != nil {
		return nil, fmt.Errorf("unmarshal parked publish: %w", err)
	}
	return &parked, nil
}

// Discard drops any parked request for the pair.
func (s *ParkedPublishStore) Discard(ctx context.Context, userID string, provider domain.ProviderType) error {
	if err := s.client.Del(ctx, parkedKey(userID, provider)).Err(); err != nil {
		return fmt.Errorf("discard parked publish: %w", err)
	}
	return nil
}
