package domain

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// ConnectionState is the durable projection of a connection's lifecycle.
// Expiring and Refreshing are derived at read time from TokenStatus and are
// never persisted; the stored state stays coarse on purpose.
type ConnectionState string

const (
	StateDisconnected   ConnectionState = "disconnected"
	StateConnected      ConnectionState = "connected"
	StateNeedsReconnect ConnectionState = "needs_reconnect"
)

// DefaultRefreshWindow is how close to expiry a token counts as expiring.
const DefaultRefreshWindow = 5 * time.Minute

// ConnectionSecrets contains decrypted token values.
// These are encrypted before storage and decrypted on retrieval.
type ConnectionSecrets struct {
	AccessToken string `json:"access_token,omitempty"`

	// RefreshToken is empty when the provider/flow does not support
	// silent refresh.
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Connection is the credential record for one (user, provider) pair.
// Exactly one record exists per pair; re-authorization overwrites it.
type Connection struct {
	UserID   string          `json:"user_id"`
	Provider ProviderType    `json:"provider"`
	State    ConnectionState `json:"state"`

	// Secrets holds decrypted token values (never persisted as-is).
	Secrets *ConnectionSecrets `json:"-"`

	// AccessTokenExpiresAt is nil when the provider reports no expiry.
	// An unknown expiry is treated as valid until a live call proves otherwise.
	AccessTokenExpiresAt *time.Time `json:"access_token_expires_at,omitempty"`

	// AccountInfo is display metadata only (email, account id).
	// Never used for authorization decisions.
	AccountInfo map[string]string `json:"account_info,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt doubles as the CAS version: writers supply the value they
	// read and the store rejects the write if it no longer matches.
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenStatus is the validator's judgment of an access token at a point in time.
type TokenStatus string

const (
	// TokenUsable means the token can be used as-is.
	TokenUsable TokenStatus = "usable"
	// TokenExpiring means the token is still valid but inside the refresh window.
	TokenExpiring TokenStatus = "expiring"
	// TokenExpired means the token's expiry has passed.
	TokenExpired TokenStatus = "expired"
	// TokenMissing means there is no access token to evaluate.
	TokenMissing TokenStatus = "missing"
)

// TokenStatusAt evaluates the access token against the given clock. A nil
// expiry is usable: absence of expiry information means the provider gave
// none, and only a live rejection may prove the token dead.
func (c *Connection) TokenStatusAt(now time.Time, refreshWindow time.Duration) TokenStatus {
	if c.Secrets == nil || c.Secrets.AccessToken == "" {
		return TokenMissing
	}
	if c.AccessTokenExpiresAt == nil {
		return TokenUsable
	}
	switch {
	case now.After(*c.AccessTokenExpiresAt):
		return TokenExpired
	case now.Add(refreshWindow).After(*c.AccessTokenExpiresAt):
		return TokenExpiring
	default:
		return TokenUsable
	}
}

// TokenStatus evaluates the access token now, with the default refresh window.
func (c *Connection) TokenStatus() TokenStatus {
	return c.TokenStatusAt(time.Now(), DefaultRefreshWindow)
}

// CanRefresh reports whether a silent refresh is possible.
func (c *Connection) CanRefresh() bool {
	return c.Secrets != nil && c.Secrets.RefreshToken != ""
}

// Usable reports whether the record may serve an outbound call at all.
// Disconnected and needs_reconnect records must never be used, even if
// stale token copies remain.
func (c *Connection) Usable() bool {
	return c.State == StateConnected && c.Secrets != nil && c.Secrets.AccessToken != ""
}

// ClearSecrets removes all token material from the record.
func (c *Connection) ClearSecrets() {
	c.Secrets = nil
	c.AccessTokenExpiresAt = nil
}

// ConnectionStatus is the safe projection exposed to the API layer.
type ConnectionStatus struct {
	Provider    ProviderType      `json:"provider"`
	State       ConnectionState   `json:"state"`
	AccountInfo map[string]string `json:"account_info,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	UpdatedAt   *time.Time        `json:"updated_at,omitempty"`
}

// ToStatus converts a Connection to its API projection.
func (c *Connection) ToStatus() *ConnectionStatus {
	updated := c.UpdatedAt
	return &ConnectionStatus{
		Provider:    c.Provider,
		State:       c.State,
		AccountInfo: c.AccountInfo,
		ExpiresAt:   c.AccessTokenExpiresAt,
		UpdatedAt:   &updated,
	}
}
