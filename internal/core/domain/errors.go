package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnsupportedProvider indicates the provider key is outside the closed set
	// or has no registered adapter
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrInvalidState indicates the OAuth state token is unknown, expired,
	// already consumed, or superseded by a newer authorization attempt
	ErrInvalidState = errors.New("invalid state token")

	// ErrExchangeFailed indicates the provider rejected the authorization code
	ErrExchangeFailed = errors.New("code exchange failed")

	// ErrNotConnected indicates no usable credential exists for the provider
	ErrNotConnected = errors.New("provider not connected")

	// ErrReconnectRequired indicates the credential is unusable and the user
	// must re-authorize before the operation can proceed
	ErrReconnectRequired = errors.New("reconnect required")

	// ErrStaleRecord indicates a compare-and-swap write lost to a concurrent
	// writer; the caller should re-read and retry
	ErrStaleRecord = errors.New("stale connection record")

	// ErrTokenExpired indicates the API auth token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the API auth token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrInvalidCredentials indicates wrong email/password combination
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ErrorKind classifies a provider-level failure. Every adapter error is
// mapped onto exactly one kind before it leaves the core, so callers never
// inspect provider-specific status codes.
type ErrorKind string

const (
	// ErrorKindAuthorization covers 401/403 and provider-specific equivalents.
	// It is the only kind that moves a connection to needs_reconnect.
	ErrorKindAuthorization ErrorKind = "authorization"

	// ErrorKindTransient covers timeouts, 5xx, and rate limits. Retryable by
	// the caller's own policy; never changes connection state.
	ErrorKindTransient ErrorKind = "transient"

	// ErrorKindValidation covers payload rejections (4xx other than auth).
	// Fatal to the attempt; never retried, never changes connection state.
	ErrorKindValidation ErrorKind = "validation"
)

// ProviderError is a classified failure from a provider adapter call.
type ProviderError struct {
	Kind     ErrorKind
	Provider ProviderType
	Status   int // HTTP status if available, 0 otherwise
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s error (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a classified provider failure.
func NewProviderError(provider ProviderType, kind ErrorKind, status int, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Status: status, Err: err}
}

// ClassifyStatus maps an HTTP status from a provider API onto an ErrorKind.
// 401 and 403 are authorization failures; 429 and all 5xx are transient;
// everything else in the 4xx range is a validation failure.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorKindAuthorization
	case status == http.StatusTooManyRequests || status >= 500:
		return ErrorKindTransient
	default:
		return ErrorKindValidation
	}
}

// ErrorKindOf extracts the classification from an error chain.
// Unclassified errors (network failures, timeouts) are treated as transient:
// only an explicit provider rejection may downgrade connection state.
func ErrorKindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrorKindTransient
}

// IsAuthorizationError reports whether err is a classified authorization failure.
func IsAuthorizationError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == ErrorKindAuthorization
}

// ConnectError represents an OAuth-flow error surfaced to the API layer.
type ConnectError struct {
	Code        string `json:"error" example:"invalid_state"`
	Description string `json:"error_description" example:"The state parameter is invalid or expired"`
}

func (e *ConnectError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}
