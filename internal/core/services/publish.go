package services

import (
	"context"
	"errors"
	"time"

	"github.com/publica-labs/publica-core/internal/core/domain"
	"github.com/publica-labs/publica-core/internal/core/ports/driven"
	"github.com/publica-labs/publica-core/internal/core/ports/driving"
)

// Ensure publishService implements PublishService
var _ driving.PublishService = (*publishService)(nil)

// PublishServiceConfig holds configuration for the publish service.
type PublishServiceConfig struct {
	// Connections produces valid credentials and records auth rejections.
	Connections driving.ConnectionService

	// Adapters resolves provider adapters.
	Adapters driven.AdapterRegistry

	// Parked holds deferred publish requests.
	Parked driven.ParkedPublishStore

	// Events receives publish lifecycle events.
	Events driven.EventSink
}

// publishService performs auth-aware publishes. A publish with no usable
// credential parks the request, whether the provider was never connected,
// explicitly disconnected, or rejected the credential on a live call;
// successful connection resumes it exactly once. The
// resumed attempt never parks again, so one request can invoke the provider
// at most twice.
type publishService struct {
	connections driving.ConnectionService
	adapters    driven.AdapterRegistry
	parked      driven.ParkedPublishStore
	events      driven.EventSink
	keys        *keyedMutex
}

// NewPublishService creates the publish orchestration service.
func NewPublishService(cfg PublishServiceConfig) driving.PublishService {
	return &publishService{
		connections: cfg.Connections,
		adapters:    cfg.Adapters,
		parked:      cfg.Parked,
		events:      cfg.Events,
		keys:        newKeyedMutex(),
	}
}

// Publish runs a publish attempt with parking enabled.
func (s *publishService) Publish(ctx context.Context, req driving.PublishRequest) (*domain.PublishResult, error) {
	if _, err := domain.ParseProviderType(string(req.Provider)); err != nil {
		return nil, err
	}
	return s.doPublish(ctx, req, true)
}

// OnReconnected resumes the parked request for the pair, if any. The keyed
// mutex serializes concurrent reconnect notifications; Take is an atomic pop,
// so only one caller ever sees the parked request.
func (s *publishService) OnReconnected(ctx context.Context, userID string, provider domain.ProviderType) (*domain.PublishResult, error) {
	if _, err := domain.ParseProviderType(string(provider)); err != nil {
		return nil, err
	}

	unlock := s.keys.Lock(connectionKey(userID, provider))
	defer unlock()

	parked, err := s.parked.Take(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if parked == nil {
		return nil, nil
	}

	s.events.Emit(ctx, domain.NewEvent(domain.EventPublishResumed, userID, provider, "ok"))

	// The resumed attempt must not park: one reconnection buys exactly
	// one retry, whatever its outcome.
	return s.doPublish(ctx, driving.PublishRequest{
		UserID:   userID,
		Provider: provider,
		Payload:  parked.Payload,
	}, false)
}

// DiscardParked drops the parked request for the pair without running it.
func (s *publishService) DiscardParked(ctx context.Context, userID string, provider domain.ProviderType) error {
	if _, err := domain.ParseProviderType(string(provider)); err != nil {
		return err
	}

	unlock := s.keys.Lock(connectionKey(userID, provider))
	defer unlock()

	if err := s.parked.Discard(ctx, userID, provider); err != nil {
		return err
	}

	s.events.Emit(ctx, domain.NewEvent(domain.EventPublishDiscarded, userID, provider, "ok"))
	return nil
}

// doPublish is the single publish path. allowPark distinguishes a fresh
// request from a resumed one.
func (s *publishService) doPublish(ctx context.Context, req driving.PublishRequest, allowPark bool) (*domain.PublishResult, error) {
	s.events.Emit(ctx, domain.NewEvent(domain.EventPublishAttempted, req.UserID, req.Provider, ""))

	adapter, err := s.adapters.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	conn, err := s.connections.EnsureValid(ctx, req.UserID, req.Provider)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotConnected), errors.Is(err, domain.ErrReconnectRequired):
			// No usable credential, whether missing, disconnected or
			// rejected: park the request so connecting resumes it.
			return s.parkOrFail(ctx, req, allowPark, err)
		default:
			// Transient credential failure: report it, nothing parked.
			s.events.Emit(ctx, domain.NewEvent(domain.EventPublishFailed, req.UserID, req.Provider, string(domain.ErrorKindTransient)))
			return &domain.PublishResult{
				Success:   false,
				ErrorKind: domain.ErrorKindTransient,
				Error:     err.Error(),
			}, nil
		}
	}

	outcome, err := adapter.Publish(ctx, conn.Secrets.AccessToken, req.Payload)
	if err == nil {
		s.events.Emit(ctx, domain.NewEvent(domain.EventPublishSucceeded, req.UserID, req.Provider, "ok"))
		return &domain.PublishResult{
			Success:    true,
			URL:        outcome.URL,
			ExternalID: outcome.ExternalID,
		}, nil
	}

	kind := domain.ErrorKindOf(err)
	if kind == domain.ErrorKindAuthorization {
		// The provider rejected a credential the validator thought was
		// fine. Record it so subsequent reads report needs_reconnect.
		if markErr := s.connections.MarkNeedsReconnect(ctx, req.UserID, req.Provider); markErr != nil {
			return nil, markErr
		}
		return s.parkOrFail(ctx, req, allowPark, err)
	}

	s.events.Emit(ctx, domain.NewEvent(domain.EventPublishFailed, req.UserID, req.Provider, string(kind)))
	return &domain.PublishResult{
		Success:   false,
		ErrorKind: kind,
		Error:     err.Error(),
	}, nil
}

// parkOrFail handles an authorization failure: park the request when this is
// a fresh attempt, or report a terminal failure when it was already resumed.
func (s *publishService) parkOrFail(ctx context.Context, req driving.PublishRequest, allowPark bool, cause error) (*domain.PublishResult, error) {
	if !allowPark {
		s.events.Emit(ctx, domain.NewEvent(domain.EventPublishFailed, req.UserID, req.Provider, string(domain.ErrorKindAuthorization)))
		return &domain.PublishResult{
			Success:   false,
			ErrorKind: domain.ErrorKindAuthorization,
			Error:     cause.Error(),
		}, nil
	}

	parked := &domain.ParkedPublish{
		UserID:    req.UserID,
		Provider:  req.Provider,
		Payload:   req.Payload,
		CreatedAt: time.Now(),
	}
	if err := s.parked.Park(ctx, parked); err != nil {
		return nil, err
	}

	s.events.Emit(ctx, domain.NewEvent(domain.EventPublishParked, req.UserID, req.Provider, "reconnect"))
	return &domain.PublishResult{
		Success:        false,
		ActionRequired: domain.ActionReconnect,
		ErrorKind:      domain.ErrorKindAuthorization,
		Error:          cause.Error(),
	}, nil
}
