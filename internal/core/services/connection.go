package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/publica-labs/publica-core/internal/core/domain"
	"github.com/publica-labs/publica-core/internal/core/ports/driven"
	"github.com/publica-labs/publica-core/internal/core/ports/driving"
)

// Ensure connectionService implements ConnectionService
var _ driving.ConnectionService = (*connectionService)(nil)

// ConnectionServiceConfig holds configuration for the connection service.
type ConnectionServiceConfig struct {
	// Store persists credential records.
	Store driven.ConnectionStore

	// StateStore manages pending authorization state.
	StateStore driven.OAuthStateStore

	// Adapters resolves provider adapters.
	Adapters driven.AdapterRegistry

	// Refresher performs token refresh attempts.
	Refresher *TokenRefresher

	// Events receives lifecycle events.
	Events driven.EventSink

	// BaseURL is the application base URL for authorization callbacks.
	// Example: "https://app.example.com" or "http://localhost:8080"
	BaseURL string

	// StateTTL is how long a pending authorization stays valid (default 10m).
	StateTTL time.Duration

	// RefreshWindow is how close to expiry a token is refreshed proactively
	// (default domain.DefaultRefreshWindow).
	RefreshWindow time.Duration
}

// connectionService owns the connection lifecycle state machine for every
// (user, provider) pair. All mutating operations on the same pair are
// serialized through a keyed mutex; the store's compare-and-swap guards
// against writers on other instances.
type connectionService struct {
	store         driven.ConnectionStore
	stateStore    driven.OAuthStateStore
	adapters      driven.AdapterRegistry
	refresher     *TokenRefresher
	events        driven.EventSink
	baseURL       string
	stateTTL      time.Duration
	refreshWindow time.Duration
	keys          *keyedMutex
}

// NewConnectionService creates the connection lifecycle service.
func NewConnectionService(cfg ConnectionServiceConfig) driving.ConnectionService {
	stateTTL := cfg.StateTTL
	if stateTTL == 0 {
		stateTTL = 10 * time.Minute
	}
	refreshWindow := cfg.RefreshWindow
	if refreshWindow == 0 {
		refreshWindow = domain.DefaultRefreshWindow
	}
	return &connectionService{
		store:         cfg.Store,
		stateStore:    cfg.StateStore,
		adapters:      cfg.Adapters,
		refresher:     cfg.Refresher,
		events:        cfg.Events,
		baseURL:       cfg.BaseURL,
		stateTTL:      stateTTL,
		refreshWindow: refreshWindow,
		keys:          newKeyedMutex(),
	}
}

// Status returns the projected state for one provider. A missing record
// reports as disconnected.
func (s *connectionService) Status(ctx context.Context, userID string, provider domain.ProviderType) (*domain.ConnectionStatus, error) {
	if _, err := domain.ParseProviderType(string(provider)); err != nil {
		return nil, err
	}
	conn, err := s.store.Load(ctx, userID, provider)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.ConnectionStatus{Provider: provider, State: domain.StateDisconnected}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	return conn.ToStatus(), nil
}

// List returns the status of every provider in the closed set.
func (s *connectionService) List(ctx context.Context, userID string) ([]*domain.ConnectionStatus, error) {
	stored, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	byProvider := make(map[domain.ProviderType]*domain.ConnectionStatus, len(stored))
	for _, st := range stored {
		byProvider[st.Provider] = st
	}

	out := make([]*domain.ConnectionStatus, 0, len(domain.AllProviderTypes()))
	for _, p := range domain.AllProviderTypes() {
		if st, ok := byProvider[p]; ok {
			out = append(out, st)
		} else {
			out = append(out, &domain.ConnectionStatus{Provider: p, State: domain.StateDisconnected})
		}
	}
	return out, nil
}

// BeginAuthorization starts (or restarts) an authorization flow. Saving the
// new state invalidates any earlier pending state for the pair, so only the
// most recent attempt can complete.
func (s *connectionService) BeginAuthorization(ctx context.Context, req driving.BeginAuthorizationRequest) (*driving.BeginAuthorizationResponse, error) {
	adapter, err := s.adapters.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	state, err := generateStateToken()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	redirectURI := s.callbackURL(req.Provider)
	now := time.Now()
	oauthState := &driven.OAuthState{
		State:       state,
		UserID:      req.UserID,
		Provider:    req.Provider,
		RedirectURI: redirectURI,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.stateTTL),
	}
	if err := s.stateStore.Save(ctx, oauthState); err != nil {
		return nil, fmt.Errorf("save oauth state: %w", err)
	}

	s.events.Emit(ctx, domain.NewEvent(domain.EventAuthorizationStarted, req.UserID, req.Provider, "ok"))

	return &driving.BeginAuthorizationResponse{
		AuthorizationURL: adapter.BuildAuthURL(state, redirectURI),
		State:            state,
		ExpiresAt:        oauthState.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// CompleteAuthorization consumes the state token exactly once, exchanges the
// code, and atomically overwrites the credential record. A failed exchange
// never clobbers an existing record.
func (s *connectionService) CompleteAuthorization(ctx context.Context, req driving.CompleteAuthorizationRequest) (*driving.CompleteAuthorizationResponse, error) {
	if req.Error != "" {
		s.events.Emit(ctx, domain.NewEvent(domain.EventAuthorizationFailed, req.UserID, req.Provider, req.Error))
		return nil, &domain.ConnectError{Code: req.Error, Description: req.ErrorDescription}
	}

	// Single-use: a replayed or superseded state comes back nil.
	oauthState, err := s.stateStore.GetAndDelete(ctx, req.State)
	if err != nil {
		return nil, fmt.Errorf("get oauth state: %w", err)
	}
	if oauthState == nil || oauthState.Provider != req.Provider ||
		(req.UserID != "" && oauthState.UserID != req.UserID) {
		s.events.Emit(ctx, domain.NewEvent(domain.EventAuthorizationFailed, req.UserID, req.Provider, "invalid_state"))
		return nil, domain.ErrInvalidState
	}
	// Provider redirects carry no bearer token; the state identifies the user.
	if req.UserID == "" {
		req.UserID = oauthState.UserID
	}

	adapter, err := s.adapters.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	unlock := s.keys.Lock(connectionKey(req.UserID, req.Provider))
	defer unlock()

	token, err := adapter.ExchangeCode(ctx, req.Code, oauthState.RedirectURI)
	if err != nil {
		s.events.Emit(ctx, domain.NewEvent(domain.EventAuthorizationFailed, req.UserID, req.Provider, "exchange_failed"))
		return nil, fmt.Errorf("%w: %v", domain.ErrExchangeFailed, err)
	}

	// Account info is display metadata only; a failure here must not
	// fail an otherwise successful authorization.
	accountInfo, infoErr := adapter.FetchAccountInfo(ctx, token.AccessToken)
	if infoErr != nil {
		accountInfo = nil
	}

	conn := &domain.Connection{
		UserID:      req.UserID,
		Provider:    req.Provider,
		State:       domain.StateConnected,
		Secrets:     &domain.ConnectionSecrets{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken},
		AccountInfo: accountInfo,
		CreatedAt:   time.Now(),
	}
	if token.ExpiresIn > 0 {
		expiry := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
		conn.AccessTokenExpiresAt = &expiry
	}

	if err := s.overwrite(ctx, conn); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}

	s.events.Emit(ctx, domain.NewEvent(domain.EventAuthorizationCompleted, req.UserID, req.Provider, "ok"))

	message := fmt.Sprintf("Connected to %s", req.Provider.DisplayName())
	if email := accountInfo["email"]; email != "" {
		message = fmt.Sprintf("Connected to %s as %s", req.Provider.DisplayName(), email)
	}

	return &driving.CompleteAuthorizationResponse{
		UserID:     req.UserID,
		Connection: conn.ToStatus(),
		Message:    message,
	}, nil
}

// Disconnect transitions the record to disconnected and clears all token
// material. Revoked tokens must never stay resident.
func (s *connectionService) Disconnect(ctx context.Context, userID string, provider domain.ProviderType) error {
	if _, err := domain.ParseProviderType(string(provider)); err != nil {
		return err
	}

	unlock := s.keys.Lock(connectionKey(userID, provider))
	defer unlock()

	err := s.mutate(ctx, userID, provider, func(conn *domain.Connection) {
		conn.State = domain.StateDisconnected
		conn.ClearSecrets()
		conn.AccountInfo = nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil // already disconnected
	}
	if err != nil {
		return err
	}

	s.events.Emit(ctx, domain.NewEvent(domain.EventDisconnected, userID, provider, "ok"))
	return nil
}

// EnsureValid returns a connection with a usable access token, refreshing
// proactively when the validator reports the token expiring or expired.
//
// State only downgrades on an explicit provider rejection of the refresh
// grant; transient failures leave the stored record untouched.
func (s *connectionService) EnsureValid(ctx context.Context, userID string, provider domain.ProviderType) (*domain.Connection, error) {
	if _, err := domain.ParseProviderType(string(provider)); err != nil {
		return nil, err
	}

	unlock := s.keys.Lock(connectionKey(userID, provider))
	defer unlock()

	conn, err := s.store.Load(ctx, userID, provider)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}

	switch conn.State {
	case domain.StateDisconnected:
		return nil, domain.ErrNotConnected
	case domain.StateNeedsReconnect:
		return nil, domain.ErrReconnectRequired
	}

	switch conn.TokenStatusAt(time.Now(), s.refreshWindow) {
	case domain.TokenUsable:
		return conn, nil

	case domain.TokenMissing:
		// Connected-with-no-token should be unrepresentable; treat a
		// corrupted record as dead rather than guessing.
		if err := s.markNeedsReconnectLocked(ctx, userID, provider); err != nil {
			return nil, err
		}
		return nil, domain.ErrReconnectRequired

	case domain.TokenExpiring:
		if !conn.CanRefresh() {
			// Still valid and nothing to refresh with: use it until a
			// live call proves otherwise.
			return conn, nil
		}
		refreshed, outcome, refreshErr := s.refresher.Refresh(ctx, conn)
		switch outcome {
		case RefreshOutcomeRefreshed:
			s.events.Emit(ctx, domain.NewEvent(domain.EventTokenRefreshed, userID, provider, "ok"))
			return refreshed, nil
		case RefreshOutcomeRejected:
			s.events.Emit(ctx, domain.NewEvent(domain.EventTokenRefreshRejected, userID, provider, "rejected"))
			if err := s.markNeedsReconnectLocked(ctx, userID, provider); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrReconnectRequired, refreshErr)
		default:
			// Transient; the current token is still valid, serve it.
			s.events.Emit(ctx, domain.NewEvent(domain.EventTokenRefreshTransient, userID, provider, "transient"))
			return conn, nil
		}

	default: // TokenExpired
		if !conn.CanRefresh() {
			s.events.Emit(ctx, domain.NewEvent(domain.EventTokenRefreshRejected, userID, provider, "no_refresh_token"))
			if err := s.markNeedsReconnectLocked(ctx, userID, provider); err != nil {
				return nil, err
			}
			return nil, domain.ErrReconnectRequired
		}
		refreshed, outcome, refreshErr := s.refresher.Refresh(ctx, conn)
		switch outcome {
		case RefreshOutcomeRefreshed:
			s.events.Emit(ctx, domain.NewEvent(domain.EventTokenRefreshed, userID, provider, "ok"))
			return refreshed, nil
		case RefreshOutcomeRejected:
			s.events.Emit(ctx, domain.NewEvent(domain.EventTokenRefreshRejected, userID, provider, "rejected"))
			if err := s.markNeedsReconnectLocked(ctx, userID, provider); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrReconnectRequired, refreshErr)
		default:
			s.events.Emit(ctx, domain.NewEvent(domain.EventTokenRefreshTransient, userID, provider, "transient"))
			return nil, refreshErr
		}
	}
}

// MarkNeedsReconnect records that a live provider call rejected the credential.
func (s *connectionService) MarkNeedsReconnect(ctx context.Context, userID string, provider domain.ProviderType) error {
	unlock := s.keys.Lock(connectionKey(userID, provider))
	defer unlock()
	return s.markNeedsReconnectLocked(ctx, userID, provider)
}

// markNeedsReconnectLocked performs the transition; the caller holds the key lock.
func (s *connectionService) markNeedsReconnectLocked(ctx context.Context, userID string, provider domain.ProviderType) error {
	err := s.mutate(ctx, userID, provider, func(conn *domain.Connection) {
		conn.State = domain.StateNeedsReconnect
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.events.Emit(ctx, domain.NewEvent(domain.EventNeedsReconnect, userID, provider, "ok"))
	return nil
}

// mutate applies fn to the current record and saves it, retrying the
// compare-and-swap a bounded number of times.
func (s *connectionService) mutate(ctx context.Context, userID string, provider domain.ProviderType, fn func(*domain.Connection)) error {
	for attempt := 0; ; attempt++ {
		conn, err := s.store.Load(ctx, userID, provider)
		if err != nil {
			return err
		}
		prev := conn.UpdatedAt
		fn(conn)
		err = s.store.Save(ctx, conn, prev)
		if err == nil {
			return nil
		}
		if err != domain.ErrStaleRecord || attempt >= maxCASRetries {
			return err
		}
	}
}

// overwrite replaces whatever record exists, retrying CAS races. Used by
// re-authorization, which always wins over concurrent refreshes.
func (s *connectionService) overwrite(ctx context.Context, conn *domain.Connection) error {
	var prev time.Time
	existing, err := s.store.Load(ctx, conn.UserID, conn.Provider)
	if err == nil {
		prev = existing.UpdatedAt
		conn.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	for attempt := 0; ; attempt++ {
		err := s.store.Save(ctx, conn, prev)
		if err == nil {
			return nil
		}
		if err != domain.ErrStaleRecord || attempt >= maxCASRetries {
			return err
		}
		current, loadErr := s.store.Load(ctx, conn.UserID, conn.Provider)
		if loadErr != nil {
			return loadErr
		}
		prev = current.UpdatedAt
	}
}

func (s *connectionService) callbackURL(provider domain.ProviderType) string {
	return fmt.Sprintf("%s/api/v1/connections/%s/callback", s.baseURL, provider)
}

// generateStateToken creates a cryptographically secure random state token.
func generateStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
