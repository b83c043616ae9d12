package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/publica-labs/publica-core/internal/core/domain"
	"github.com/publica-labs/publica-core/internal/core/ports/driven"
	"github.com/publica-labs/publica-core/internal/core/ports/driving"
)

type publishFixture struct {
	publish     driving.PublishService
	connections driving.ConnectionService
	store       *mockConnectionStore
	parked      *mockParkedStore
	adapter     *mockAdapter
	events      *mockEventSink
}

func newPublishFixture(provider domain.ProviderType) *publishFixture {
	store := newMockConnectionStore()
	states := newMockOAuthStateStore()
	adapter := newMockAdapter(provider)
	parked := newMockParkedStore()
	events := newMockEventSink()
	registry := newMockRegistry(adapter)

	connections := NewConnectionService(ConnectionServiceConfig{
		Store:      store,
		StateStore: states,
		Adapters:   registry,
		Refresher:  NewTokenRefresher(registry, store),
		Events:     events,
		BaseURL:    "http://localhost:8080",
	})

	publish := NewPublishService(PublishServiceConfig{
		Connections: connections,
		Adapters:    registry,
		Parked:      parked,
		Events:      events,
	})

	return &publishFixture{
		publish:     publish,
		connections: connections,
		store:       store,
		parked:      parked,
		adapter:     adapter,
		events:      events,
	}
}

func publishReq(provider domain.ProviderType) driving.PublishRequest {
	return driving.PublishRequest{
		UserID:   "u1",
		Provider: provider,
		Payload:  domain.PublishPayload(`{"title":"hello","content":"world"}`),
	}
}

func TestPublishSuccess(t *testing.T) {
	f := newPublishFixture(domain.ProviderTypeWordPress)
	f.store.put(connectedRecord("u1", domain.ProviderTypeWordPress, time.Hour))

	result, err := f.publish.Publish(context.Background(), publishReq(domain.ProviderTypeWordPress))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.URL != "https://blog.test/post/1" {
		t.Errorf("unexpected URL %q", result.URL)
	}
	if f.events.count(domain.EventPublishSucceeded) != 1 {
		t.Error("expected a publish_succeeded event")
	}
}

func TestPublishUnknownProvider(t *testing.T) {
	f := newPublishFixture(domain.ProviderTypeWordPress)

	_, err := f.publish.Publish(context.Background(), publishReq(domain.ProviderType("myspace")))
	if !errors.Is(err, domain.ErrUnsupportedProvider) {
		t.Errorf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestPublishNeverConnectedParks(t *testing.T) {
	f := newPublishFixture(domain.ProviderTypeWordPress)

	result, err := f.publish.Publish(context.Background(), publishReq(domain.ProviderTypeWordPress))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.ActionRequired != domain.ActionReconnect {
		t.Errorf("expected reconnect action, got %q", result.ActionRequired)
	}
	if !f.parked.has("u1", domain.ProviderTypeWordPress) {
		t.Error("request was not parked")
	}
}

// Publishing against an explicitly disconnected provider parks the request
// so that connecting again resumes it.
func TestPublishDisconnectedParksAndResumes(t *testing.T) {
	f := newPublishFixture(domain.ProviderTypeWordPress)
	ctx := context.Background()
	conn := connectedRecord("u1", domain.ProviderTypeWordPress, time.Hour)
	conn.State = domain.StateDisconnected
	f.store.put(conn)

	result, err := f.publish.Publish(ctx, publishReq(domain.ProviderTypeWordPress))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.ActionRequired != domain.ActionReconnect {
		t.Errorf("expected reconnect action, got %q", result.ActionRequired)
	}
	if !f.parked.has("u1", domain.ProviderTypeWordPress) {
		t.Fatal("request was not parked")
	}
	if f.events.count(domain.EventPublishParked) != 1 {
		t.Error("expected a publish_parked event")
	}

	// User connects; the parked request resumes and publishes.
	begin, err := f.connections.BeginAuthorization(ctx, driving.BeginAuthorizationRequest{UserID: "u1", Provider: domain.ProviderTypeWordPress})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.connections.CompleteAuthorization(ctx, driving.CompleteAuthorizationRequest{
		UserID:   "u1",
		Provider: domain.ProviderTypeWordPress,
		Code:     "fresh",
		State:    begin.State,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resumed, err := f.publish.OnReconnected(ctx, "u1", domain.ProviderTypeWordPress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resumed == nil || !resumed.Success {
		t.Fatalf("expected successful resumption, got %+v", resumed)
	}
	if f.parked.has("u1", domain.ProviderTypeWordPress) {
		t.Error("parked request not consumed")
	}
}

func TestPublishAuthFailureParksAndMarksReconnect(t *testing.T) {
	f := newPublishFixture(domain.ProviderTypeWordPress)
	f.store.put(connectedRecord("u1", domain.ProviderTypeWordPress, time.Hour))

	f.adapter.publishFn = func(ctx context.Context, accessToken string, payload domain.PublishPayload) (*driven.PublishOutcome, error) {
		return nil, providerFailure(domain.ProviderTypeWordPress, 401)
	}

	result, err := f.publish.Publish(context.Background(), publishReq(domain.ProviderTypeWordPress))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.ActionRequired != domain.ActionReconnect {
		t.Errorf("expected reconnect action, got %q", result.ActionRequired)
	}
	if !f.parked.has("u1", domain.ProviderTypeWordPress) {
		t.Error("request was not parked")
	}

	stored := f.store.get("u1", domain.ProviderTypeWordPress)
	if stored.State != domain.StateNeedsReconnect {
		t.Errorf("expected needs_reconnect, got %s", stored.State)
	}
	if f.events.count(domain.EventPublishParked) != 1 {
		t.Error("expected a publish_parked event")
	}
}

func TestPublishTransientFailureDoesNotPark(t *testing.T) {
	f := newPublishFixture(domain.ProviderTypeWordPress)
	f.store.put(connectedRecord("u1", domain.ProviderTypeWordPress, time.Hour))

	f.adapter.publishFn = func(ctx context.Context, accessToken string, payload domain.PublishPayload) (*driven.PublishOutcome, error) {
		return nil, providerFailure(domain.ProviderTypeWordPress, 503)
	}

	result, err := f.publish.Publish(context.Background(), publishReq(domain.ProviderTypeWordPress))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ErrorKind != domain.ErrorKindTransient {
		t.Errorf("expected transient kind, got %q", result.ErrorKind)
	}
	if f.parked.has("u1", domain.ProviderTypeWordPress) {
		t.Error("transient failure must not park")
	}

	stored := f.store.get("u1", domain.ProviderTypeWordPress)
	if stored.State != domain.StateConnected {
		t.Errorf("transient failure changed state to %s", stored.State)
	}
}

func TestPublishValidationFailureDoesNotPark(t *testing.T) {
	f := newPublishFixture(domain.ProviderTypeWordPress)
	f.store.put(connectedRecord("u1", domain.ProviderTypeWordPress, time.Hour))

	f.adapter.publishFn = func(ctx context.Context, accessToken string, payload domain.PublishPayload) (*driven.PublishOutcome, error) {
		return nil, providerFailure(domain.ProviderTypeWordPress, 422)
	}

	result, err := f.publish.Publish(context.Background(), publishReq(domain.ProviderTypeWordPress))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ErrorKind != domain.ErrorKindValidation {
		t.Errorf("expected validation kind, got %q", result.ErrorKind)
	}
	if f.parked.has("u1", domain.ProviderTypeWordPress) {
		t.Error("validation failure must not park")
	}

	stored := f.store.get("u1", domain.ProviderTypeWordPress)
	if stored.State != domain.StateConnected {
		t.Errorf("validation failure changed state to %s", stored.State)
	}
}

func TestPublishParkingIsLastOneWins(t *testing.T) {
	f := newPublishFixture(domain.ProviderTypeWordPress)
	f.store.put(connectedRecord("u1", domain.ProviderTypeWordPress, time.Hour))

	f.adapter.publishFn = func(ctx context.Context, accessToken string, payload domain.PublishPayload) (*driven.PublishOutcome, error) {
		return nil, providerFailure(domain.ProviderTypeWordPress, 401)
	}

	first := publishReq(domain.ProviderTypeWordPress)
	if _, err := f.publish.Publish(context.Background(), first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := publishReq(domain.ProviderTypeWordPress)
	second.Payload = domain.PublishPayload(`{"title":"newer"}`)
	if _, err := f.publish.Publish(context.Background(), second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parked, err := f.parked.Take(context.Background(), "u1", domain.ProviderTypeWordPress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parked == nil {
		t.Fatal("expected a parked request")
	}
	if string(parked.Payload) != `{"title":"newer"}` {
		t.Errorf("expected newest payload to win, got %s", parked.Payload)
	}
}

// The full lifecycle: publish fails on authorization, the request parks,
// re-authorization completes, and the resumption publishes the original
// payload exactly once. The adapter sees exactly two publish calls.
func TestPublishParkReconnectResume(t *testing.T) {
	f := newPublishFixture(domain.ProviderTypeWordPress)
	ctx := context.Background()
	f.store.put(connectedRecord("u1", domain.ProviderTypeWordPress, time.Hour))

	f.adapter.publishFn = func(ctx context.Context, accessToken string, payload domain.PublishPayload) (*driven.PublishOutcome, error) {
		return nil, providerFailure(domain.ProviderTypeWordPress, 401)
	}

	result, err := f.publish.Publish(ctx, publishReq(domain.ProviderTypeWordPress))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ActionRequired != domain.ActionReconnect {
		t.Fatalf("expected reconnect action, got %+v", result)
	}

	// User re-authorizes.
	begin, err := f.connections.BeginAuthorization(ctx, driving.BeginAuthorizationRequest{UserID: "u1", Provider: domain.ProviderTypeWordPress})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.connections.CompleteAuthorization(ctx, driving.CompleteAuthorizationRequest{
		UserID:   "u1",
		Provider: domain.ProviderTypeWordPress,
		Code:     "fresh",
		State:    begin.State,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The provider accepts the new token.
	f.adapter.publishFn = nil

	resumed, err := f.publish.OnReconnected(ctx, "u1", domain.ProviderTypeWordPress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resumed == nil || !resumed.Success {
		t.Fatalf("expected successful resumption, got %+v", resumed)
	}

	if got := f.adapter.publishCount(); got != 2 {
		t.Errorf("adapter publish called %d times, want exactly 2", got)
	}
	if f.parked.has("u1", domain.ProviderTypeWordPress) {
		t.Error("parked request not consumed")
	}

	// A second notification finds nothing.
	again, err := f.publish.OnReconnected(ctx, "u1", domain.ProviderTypeWordPress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != nil {
		t.Errorf("second resumption should be a no-op, got %+v", again)
	}
	if got := f.adapter.publishCount(); got != 2 {
		t.Errorf("adapter publish called %d times after duplicate notification, want 2", got)
	}
}

// A resumed publish that fails on authorization again must not re-park.
// One reconnection buys exactly one retry.
func TestResumedPublishDoesNotReparkOnAuthFailure(t *testing.T) {
	f := newPublishFixture(domain.ProviderTypeWordPress)
	ctx := context.Background()
	f.store.put(connectedRecord("u1", domain.ProviderTypeWordPress, time.Hour))

	f.adapter.publishFn = func(ctx context.Context, accessToken string, payload domain.PublishPayload) (*driven.PublishOutcome, error) {
		return nil, providerFailure(domain.ProviderTypeWordPress, 401)
	}

	if _, err := f.publish.Publish(ctx, publishReq(domain.ProviderTypeWordPress)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.parked.parkCalls != 1 {
		t.Fatalf("expected 1 park, got %d", f.parked.parkCalls)
	}

	// Reconnect, but the provider still rejects the publish.
	begin, _ := f.connections.BeginAuthorization(ctx, driving.BeginAuthorizationRequest{UserID: "u1", Provider: domain.ProviderTypeWordPress})
	if _, err := f.connections.CompleteAuthorization(ctx, driving.CompleteAuthorizationRequest{
		UserID:   "u1",
		Provider: domain.ProviderTypeWordPress,
		Code:     "fresh",
		State:    begin.State,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resumed, err := f.publish.OnReconnected(ctx, "u1", domain.ProviderTypeWordPress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resumed.Success {
		t.Fatal("expected failure")
	}
	if resumed.ActionRequired == domain.ActionReconnect && f.parked.has("u1", domain.ProviderTypeWordPress) {
		t.Error("resumed request was re-parked")
	}
	if f.parked.parkCalls != 1 {
		t.Errorf("park called %d times, want exactly 1", f.parked.parkCalls)
	}
	if got := f.adapter.publishCount(); got != 2 {
		t.Errorf("adapter publish called %d times, want exactly 2", got)
	}
}

// A discarded parked request is gone: the next reconnection resumes nothing.
func TestDiscardParkedDropsRequest(t *testing.T) {
	f := newPublishFixture(domain.ProviderTypeWordPress)
	ctx := context.Background()
	f.store.put(connectedRecord("u1", domain.ProviderTypeWordPress, time.Hour))

	f.adapter.publishFn = func(ctx context.Context, accessToken string, payload domain.PublishPayload) (*driven.PublishOutcome, error) {
		return nil, providerFailure(domain.ProviderTypeWordPress, 401)
	}
	if _, err := f.publish.Publish(ctx, publishReq(domain.ProviderTypeWordPress)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.parked.has("u1", domain.ProviderTypeWordPress) {
		t.Fatal("request was not parked")
	}

	if err := f.publish.DiscardParked(ctx, "u1", domain.ProviderTypeWordPress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.parked.has("u1", domain.ProviderTypeWordPress) {
		t.Fatal("parked request survived discard")
	}
	if f.events.count(domain.EventPublishDiscarded) != 1 {
		t.Error("expected a publish_discarded event")
	}

	f.adapter.publishFn = nil
	result, err := f.publish.OnReconnected(ctx, "u1", domain.ProviderTypeWordPress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result after discard, got %+v", result)
	}
}

func TestDiscardParkedUnknownProvider(t *testing.T) {
	f := newPublishFixture(domain.ProviderTypeWordPress)

	err := f.publish.DiscardParked(context.Background(), "u1", domain.ProviderType("myspace"))
	if !errors.Is(err, domain.ErrUnsupportedProvider) {
		t.Errorf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestOnReconnectedNothingParked(t *testing.T) {
	f := newPublishFixture(domain.ProviderTypeWordPress)
	f.store.put(connectedRecord("u1", domain.ProviderTypeWordPress, time.Hour))

	result, err := f.publish.OnReconnected(context.Background(), "u1", domain.ProviderTypeWordPress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %+v", result)
	}
	if f.adapter.publishCount() != 0 {
		t.Error("no publish should happen when nothing is parked")
	}
}

// Concurrent reconnect notifications race on the same parked request; the
// atomic pop guarantees only one of them resumes it.
func TestConcurrentOnReconnectedResumesOnce(t *testing.T) {
	f := newPublishFixture(domain.ProviderTypeWordPress)
	ctx := context.Background()
	f.store.put(connectedRecord("u1", domain.ProviderTypeWordPress, time.Hour))

	if err := f.parked.Park(ctx, &domain.ParkedPublish{
		UserID:    "u1",
		Provider:  domain.ProviderTypeWordPress,
		Payload:   domain.PublishPayload(`{"title":"parked"}`),
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*domain.PublishResult, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.publish.OnReconnected(ctx, "u1", domain.ProviderTypeWordPress)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	resumed := 0
	for _, r := range results {
		if r != nil {
			resumed++
		}
	}
	if resumed != 1 {
		t.Errorf("%d callers resumed the parked request, want exactly 1", resumed)
	}
	if got := f.adapter.publishCount(); got != 1 {
		t.Errorf("adapter publish called %d times, want exactly 1", got)
	}
}
