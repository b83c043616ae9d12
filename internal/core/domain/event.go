package domain

import "time"

// EventType names an observable occurrence in the connection or publish
// lifecycle.
type EventType string

const (
	EventAuthorizationStarted   EventType = "authorization_started"
	EventAuthorizationCompleted EventType = "authorization_completed"
	EventAuthorizationFailed    EventType = "authorization_failed"
	EventTokenRefreshed         EventType = "token_refreshed"
	EventTokenRefreshRejected   EventType = "token_refresh_rejected"
	EventTokenRefreshTransient  EventType = "token_refresh_transient"
	EventDisconnected           EventType = "disconnected"
	EventNeedsReconnect         EventType = "needs_reconnect"
	EventPublishAttempted       EventType = "publish_attempted"
	EventPublishSucceeded       EventType = "publish_succeeded"
	EventPublishFailed          EventType = "publish_failed"
	EventPublishParked          EventType = "publish_parked"
	EventPublishResumed         EventType = "publish_resumed"
	EventPublishDiscarded       EventType = "publish_discarded"
)

// Event is a structured observability record. The core never logs directly;
// every state transition and publish attempt is emitted as one of these.
type Event struct {
	Type     EventType    `json:"type"`
	UserID   string       `json:"user_id"`
	Provider ProviderType `json:"provider"`
	At       time.Time    `json:"at"`

	// Outcome is a short machine-readable result ("ok", "invalid_state",
	// "transient", ...). Empty for pure transitions.
	Outcome string `json:"outcome,omitempty"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(t EventType, userID string, provider ProviderType, outcome string) Event {
	return Event{
		Type:     t,
		UserID:   userID,
		Provider: provider,
		At:       time.Now(),
		Outcome:  outcome,
	}
}
