// Package gsc implements the Google Search Console provider adapter.
//
// "Publishing" to Search Console is a URL notification: the adapter submits
// the content's public URL so Google recrawls it.
package gsc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/publica-labs/publica-core/internal/adapters/driven/providers"
	"github.com/publica-labs/publica-core/internal/core/domain"
	"github.com/publica-labs/publica-core/internal/core/ports/driven"
)

// Ensure Adapter implements the interface.
var _ driven.ProviderAdapter = (*Adapter)(nil)

const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	defaultIndexingURL = "https://indexing.googleapis.com/v3/urlNotifications:publish"

	scopes = "openid email https://www.googleapis.com/auth/webmasters"
)

// Config holds Google OAuth client credentials.
type Config struct {
	ClientID     string
	ClientSecret string

	AuthURL     string
	TokenURL    string
	UserInfoURL string
	IndexingURL string
}

// Adapter talks to Google's OAuth2 and indexing APIs.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a Google Search Console adapter.
func New(cfg Config) *Adapter {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}
	if cfg.IndexingURL == "" {
		cfg.IndexingURL = defaultIndexingURL
	}
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Type returns the provider this adapter serves.
func (a *Adapter) Type() domain.ProviderType {
	return domain.ProviderTypeGSC
}

// BuildAuthURL constructs the Google authorization URL. access_type=offline
// with prompt=consent is what makes Google issue a refresh token.
func (a *Adapter) BuildAuthURL(state, redirectURI string) string {
	params := url.Values{
		"client_id":     {a.cfg.ClientID},
		"redirect_uri":  {redirectURI},
		"response_type": {"code"},
		"state":         {state},
		"scope":         {scopes},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
	}
	return a.cfg.AuthURL + "?" + params.Encode()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// ExchangeCode exchanges an authorization code for tokens.
func (a *Adapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*driven.AdapterToken, error) {
	params := url.Values{
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"grant_type":    {"authorization_code"},
	}
	return a.requestToken(ctx, params)
}

// RefreshToken obtains a fresh access token. Google does not rotate the
// refresh token, so the returned RefreshToken is empty and the caller keeps
// the stored one.
func (a *Adapter) RefreshToken(ctx context.Context, refreshToken string) (*driven.AdapterToken, error) {
	params := url.Values{
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return a.requestToken(ctx, params)
}

func (a *Adapter) requestToken(ctx context.Context, params url.Values) (*driven.AdapterToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, providers.TransportError(a.Type(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.TransportError(a.Type(), err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp tokenResponse
		// Google reports a revoked or expired refresh grant as HTTP 400
		// invalid_grant, not 401. That is an authorization failure, not
		// a payload problem.
		if json.Unmarshal(body, &errResp) == nil && errResp.Error == "invalid_grant" {
			return nil, providers.AuthorizationError(a.Type(), resp.StatusCode, body)
		}
		return nil, providers.ResponseError(a.Type(), resp.StatusCode, body)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	return &driven.AdapterToken{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresIn:    tokenResp.ExpiresIn,
	}, nil
}

// FetchAccountInfo retrieves the Google account's email.
func (a *Adapter) FetchAccountInfo(ctx context.Context, accessToken string) (driven.AccountInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, providers.TransportError(a.Type(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.TransportError(a.Type(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providers.ResponseError(a.Type(), resp.StatusCode, body)
	}

	var userInfo struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}

	return driven.AccountInfo{
		"email": userInfo.Email,
		"name":  userInfo.Name,
	}, nil
}

// publishPayload is the expected shape of the opaque payload for GSC.
type publishPayload struct {
	URL  string `json:"url"`
	Type string `json:"type,omitempty"` // URL_UPDATED (default) or URL_DELETED
}

// Publish submits a URL notification.
func (a *Adapter) Publish(ctx context.Context, accessToken string, payload domain.PublishPayload) (*driven.PublishOutcome, error) {
	var notification publishPayload
	if err := json.Unmarshal(payload, &notification); err != nil {
		return nil, domain.NewProviderError(a.Type(), domain.ErrorKindValidation, 0,
			fmt.Errorf("decode payload: %w", err))
	}
	if notification.URL == "" {
		return nil, domain.NewProviderError(a.Type(), domain.ErrorKindValidation, 0,
			fmt.Errorf("payload missing url"))
	}
	if notification.Type == "" {
		notification.Type = "URL_UPDATED"
	}

	reqBody, err := json.Marshal(map[string]string{
		"url":  notification.URL,
		"type": notification.Type,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.IndexingURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, providers.TransportError(a.Type(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.TransportError(a.Type(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providers.ResponseError(a.Type(), resp.StatusCode, body)
	}

	return &driven.PublishOutcome{
		URL:        notification.URL,
		ExternalID: notification.URL,
	}, nil
}
