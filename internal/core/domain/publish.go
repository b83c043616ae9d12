package domain

import (
	"encoding/json"
	"time"
)

// PublishPayload is the content to publish. It is opaque to this core: the
// content pipeline owns its shape and the provider adapter owns its mapping
// onto the provider API.
type PublishPayload = json.RawMessage

// ActionRequired tells the caller what, if anything, must happen before the
// request can succeed.
type ActionRequired string

const (
	// ActionNone means no follow-up action; the result is final.
	ActionNone ActionRequired = ""
	// ActionReconnect means the user must re-authorize the provider; the
	// request has been parked and will resume after reconnection.
	ActionReconnect ActionRequired = "reconnect"
)

// PublishResult is the outcome of a publish attempt.
type PublishResult struct {
	Success bool `json:"success"`

	// URL is the public location of the published content, when the
	// provider reports one.
	URL string `json:"url,omitempty"`

	// ExternalID is the provider-side identifier of the created resource.
	ExternalID string `json:"external_id,omitempty"`

	ActionRequired ActionRequired `json:"action_required,omitempty"`

	// ErrorKind classifies the failure when Success is false and no
	// action is required.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// Error is the underlying failure message, for display only.
	Error string `json:"error,omitempty"`
}

// ParkedPublish is a publish request deferred until the provider connection
// is restored. It is created only on an authorization failure, consumed
// exactly once on successful reconnection, and discarded if superseded by a
// newer parked request for the same (user, provider) pair.
type ParkedPublish struct {
	UserID    string         `json:"user_id"`
	Provider  ProviderType   `json:"provider"`
	Payload   PublishPayload `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}
