package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/publica-labs/publica-core/internal/core/domain"
	"github.com/publica-labs/publica-core/internal/core/ports/driven"
)

// mockConnectionStore implements driven.ConnectionStore with real
// compare-and-swap semantics so races can be simulated.
type mockConnectionStore struct {
	mu    sync.Mutex
	conns map[string]*domain.Connection

	saveHook func(conn *domain.Connection) // runs before each save attempt
	saveErr  error
}

func newMockConnectionStore() *mockConnectionStore {
	return &mockConnectionStore{conns: make(map[string]*domain.Connection)}
}

func (m *mockConnectionStore) key(userID string, provider domain.ProviderType) string {
	return userID + "/" + string(provider)
}

func (m *mockConnectionStore) Load(ctx context.Context, userID string, provider domain.ProviderType) (*domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[m.key(userID, provider)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *conn
	if conn.Secrets != nil {
		secrets := *conn.Secrets
		cp.Secrets = &secrets
	}
	return &cp, nil
}

func (m *mockConnectionStore) Save(ctx context.Context, conn *domain.Connection, prevUpdatedAt time.Time) error {
	if m.saveHook != nil {
		m.saveHook(conn)
	}
	if m.saveErr != nil {
		return m.saveErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.key(conn.UserID, conn.Provider)
	existing, exists := m.conns[key]
	if prevUpdatedAt.IsZero() {
		if exists {
			return domain.ErrStaleRecord
		}
	} else {
		if !exists || !existing.UpdatedAt.Equal(prevUpdatedAt) {
			return domain.ErrStaleRecord
		}
	}

	cp := *conn
	if conn.Secrets != nil {
		secrets := *conn.Secrets
		cp.Secrets = &secrets
	}
	cp.UpdatedAt = time.Now()
	m.conns[key] = &cp
	conn.UpdatedAt = cp.UpdatedAt
	return nil
}

func (m *mockConnectionStore) List(ctx context.Context, userID string) ([]*domain.ConnectionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ConnectionStatus
	for _, conn := range m.conns {
		if conn.UserID == userID {
			out = append(out, conn.ToStatus())
		}
	}
	return out, nil
}

func (m *mockConnectionStore) ListExpiring(ctx context.Context, cutoff time.Time) ([]*domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Connection
	for _, conn := range m.conns {
		if conn.State != domain.StateConnected || !conn.CanRefresh() {
			continue
		}
		if conn.AccessTokenExpiresAt != nil && conn.AccessTokenExpiresAt.Before(cutoff) {
			cp := *conn
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockConnectionStore) Delete(ctx context.Context, userID string, provider domain.ProviderType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, m.key(userID, provider))
	return nil
}

// put installs a record directly, bypassing CAS. Test setup only.
func (m *mockConnectionStore) put(conn *domain.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn.UpdatedAt.IsZero() {
		conn.UpdatedAt = time.Now()
	}
	m.conns[m.key(conn.UserID, conn.Provider)] = conn
}

// get reads a record directly for assertions.
func (m *mockConnectionStore) get(userID string, provider domain.ProviderType) *domain.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[m.key(userID, provider)]
}

// mockOAuthStateStore implements driven.OAuthStateStore, including
// invalidation of earlier pending states for the same (user, provider).
type mockOAuthStateStore struct {
	mu     sync.Mutex
	states map[string]*driven.OAuthState
}

func newMockOAuthStateStore() *mockOAuthStateStore {
	return &mockOAuthStateStore{states: make(map[string]*driven.OAuthState)}
}

func (m *mockOAuthStateStore) Save(ctx context.Context, state *driven.OAuthState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.states {
		if v.UserID == state.UserID && v.Provider == state.Provider {
			delete(m.states, k)
		}
	}
	m.states[state.State] = state
	return nil
}

func (m *mockOAuthStateStore) GetAndDelete(ctx context.Context, state string) (*driven.OAuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[state]
	if !ok {
		return nil, nil
	}
	delete(m.states, state)
	if time.Now().After(s.ExpiresAt) {
		return nil, nil
	}
	return s, nil
}

func (m *mockOAuthStateStore) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, v := range m.states {
		if now.After(v.ExpiresAt) {
			delete(m.states, k)
		}
	}
	return nil
}

// mockParkedStore implements driven.ParkedPublishStore.
type mockParkedStore struct {
	mu     sync.Mutex
	parked map[string]*domain.ParkedPublish

	parkCalls int
}

func newMockParkedStore() *mockParkedStore {
	return &mockParkedStore{parked: make(map[string]*domain.ParkedPublish)}
}

func (m *mockParkedStore) key(userID string, provider domain.ProviderType) string {
	return userID + "/" + string(provider)
}

func (m *mockParkedStore) Park(ctx context.Context, p *domain.ParkedPublish) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parkCalls++
	m.parked[m.key(p.UserID, p.Provider)] = p
	return nil
}

func (m *mockParkedStore) Take(ctx context.Context, userID string, provider domain.ProviderType) (*domain.ParkedPublish, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.key(userID, provider)
	p, ok := m.parked[key]
	if !ok {
		return nil, nil
	}
	delete(m.parked, key)
	return p, nil
}

func (m *mockParkedStore) Discard(ctx context.Context, userID string, provider domain.ProviderType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.parked, m.key(userID, provider))
	return nil
}

func (m *mockParkedStore) has(userID string, provider domain.ProviderType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.parked[m.key(userID, provider)]
	return ok
}

// mockAdapter implements driven.ProviderAdapter with pluggable behavior.
type mockAdapter struct {
	provider domain.ProviderType

	exchangeFn func(ctx context.Context, code, redirectURI string) (*driven.AdapterToken, error)
	refreshFn  func(ctx context.Context, refreshToken string) (*driven.AdapterToken, error)
	infoFn     func(ctx context.Context, accessToken string) (driven.AccountInfo, error)
	publishFn  func(ctx context.Context, accessToken string, payload domain.PublishPayload) (*driven.PublishOutcome, error)

	mu            sync.Mutex
	exchangeCalls int
	refreshCalls  int
	publishCalls  int
}

func newMockAdapter(provider domain.ProviderType) *mockAdapter {
	return &mockAdapter{provider: provider}
}

func (m *mockAdapter) Type() domain.ProviderType { return m.provider }

func (m *mockAdapter) BuildAuthURL(state, redirectURI string) string {
	return "https://provider.test/authorize?state=" + state + "&redirect_uri=" + redirectURI
}

func (m *mockAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*driven.AdapterToken, error) {
	m.mu.Lock()
	m.exchangeCalls++
	m.mu.Unlock()
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code, redirectURI)
	}
	return &driven.AdapterToken{AccessToken: "access-" + code, RefreshToken: "refresh-" + code, ExpiresIn: 3600}, nil
}

func (m *mockAdapter) RefreshToken(ctx context.Context, refreshToken string) (*driven.AdapterToken, error) {
	m.mu.Lock()
	m.refreshCalls++
	m.mu.Unlock()
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return &driven.AdapterToken{AccessToken: "refreshed-access", RefreshToken: "refreshed-refresh", ExpiresIn: 3600}, nil
}

func (m *mockAdapter) FetchAccountInfo(ctx context.Context, accessToken string) (driven.AccountInfo, error) {
	if m.infoFn != nil {
		return m.infoFn(ctx, accessToken)
	}
	return driven.AccountInfo{"email": "author@example.com"}, nil
}

func (m *mockAdapter) Publish(ctx context.Context, accessToken string, payload domain.PublishPayload) (*driven.PublishOutcome, error) {
	m.mu.Lock()
	m.publishCalls++
	m.mu.Unlock()
	if m.publishFn != nil {
		return m.publishFn(ctx, accessToken, payload)
	}
	return &driven.PublishOutcome{URL: "https://blog.test/post/1", ExternalID: "1"}, nil
}

func (m *mockAdapter) publishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publishCalls
}

// mockRegistry implements driven.AdapterRegistry.
type mockRegistry struct {
	adapters map[domain.ProviderType]driven.ProviderAdapter
}

func newMockRegistry(adapters ...driven.ProviderAdapter) *mockRegistry {
	m := &mockRegistry{adapters: make(map[domain.ProviderType]driven.ProviderAdapter)}
	for _, a := range adapters {
		m.adapters[a.Type()] = a
	}
	return m
}

func (m *mockRegistry) Get(provider domain.ProviderType) (driven.ProviderAdapter, error) {
	a, ok := m.adapters[provider]
	if !ok {
		return nil, domain.ErrUnsupportedProvider
	}
	return a, nil
}

func (m *mockRegistry) SupportedTypes() []domain.ProviderType {
	out := make([]domain.ProviderType, 0, len(m.adapters))
	for t := range m.adapters {
		out = append(out, t)
	}
	return out
}

// mockEventSink records emitted events.
type mockEventSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func newMockEventSink() *mockEventSink {
	return &mockEventSink{}
}

func (m *mockEventSink) Emit(ctx context.Context, event domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockEventSink) count(t domain.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// providerFailure builds a classified provider error from an HTTP status.
func providerFailure(provider domain.ProviderType, status int) error {
	return domain.NewProviderError(provider, domain.ClassifyStatus(status), status, fmt.Errorf("provider returned %d", status))
}
