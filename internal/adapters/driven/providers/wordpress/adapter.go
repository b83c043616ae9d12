// Package wordpress implements the WordPress.com provider adapter.
package wordpress

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
	defaultAuthURL  = "https://public-api.wordpress.com/oauth2/authorize"
	defaultTokenURL = "https://public-api.wordpress.com/oauth2/token"
	defaultAPIBase  = "https://public-api.wordpress.com/rest/v1.1"
)

// Config holds WordPress.com application credentials. The URL fields exist
// so tests can point the adapter at a local server; zero values use the
// production endpoints.
type Config struct {
	ClientID     string
	ClientSecret string

	AuthURL  string
	TokenURL string
	APIBase  string
}

// Adapter talks to the WordPress.com OAuth2 and REST APIs.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a WordPress.com adapter.
func New(cfg Config) *Adapter {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Type returns the provider this adapter serves.
func (a *Adapter) Type() domain.ProviderType {
	return domain.ProviderTypeWordPress
}

// BuildAuthURL constructs the WordPress.com authorization URL.
func (a *Adapter) BuildAuthURL(state, redirectURI string) string {
	params := url.Values{
		"client_id":     {a.cfg.ClientID},
		"redirect_uri":  {redirectURI},
		"response_type": {"code"},
		"state":         {state},
		"scope":         {"global"},
	}
	return a.cfg.AuthURL + "?" + params.Encode()
}

// tokenResponse is the WordPress.com token endpoint response.
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

// RefreshToken obtains fresh tokens from a refresh token.
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
	req.Header.Set("Accept", "application/json")

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
		// invalid_grant means the refresh token is revoked or consumed,
		// which WordPress.com reports as HTTP 400.
		if json.Unmarshal(body, &errResp) == nil && errResp.Error == "invalid_grant" {
			return nil, providers.AuthorizationError(a.Type(), resp.StatusCode, body)
		}
		return nil, providers.ResponseError(a.Type(), resp.StatusCode, body)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.Error != "" {
		return nil, providers.ResponseError(a.Type(), resp.StatusCode, body)
	}

	return &driven.AdapterToken{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresIn:    tokenResp.ExpiresIn,
	}, nil
}

// FetchAccountInfo retrieves the connected account's display metadata.
func (a *Adapter) FetchAccountInfo(ctx context.Context, accessToken string) (driven.AccountInfo, error) {
	body, err := a.get(ctx, a.cfg.APIBase+"/me", accessToken)
	if err != nil {
		return nil, err
	}

	var me struct {
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		PrimaryBlog int64  `json:"primary_blog"`
		BlogURL     string `json:"primary_blog_url"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		return nil, fmt.Errorf("decode account info: %w", err)
	}

	info := driven.AccountInfo{
		"email": me.Email,
		"name":  me.DisplayName,
	}
	if me.BlogURL != "" {
		info["blog_url"] = me.BlogURL
	}
	if me.PrimaryBlog != 0 {
		info["primary_blog"] = fmt.Sprintf("%d", me.PrimaryBlog)
	}
	return info, nil
}

// publishPayload is the expected shape of the opaque payload for WordPress.
type publishPayload struct {
	Site    string   `json:"site"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
	Status  string   `json:"status,omitempty"`
}

// Publish creates a post on the given site.
func (a *Adapter) Publish(ctx context.Context, accessToken string, payload domain.PublishPayload) (*driven.PublishOutcome, error) {
	var post publishPayload
	if err := json.Unmarshal(payload, &post); err != nil {
		return nil, domain.NewProviderError(a.Type(), domain.ErrorKindValidation, 0,
			fmt.Errorf("decode payload: %w", err))
	}
	if post.Site == "" {
		return nil, domain.NewProviderError(a.Type(), domain.ErrorKindValidation, 0,
			fmt.Errorf("payload missing site"))
	}
	if post.Status == "" {
		post.Status = "publish"
	}

	reqBody, err := json.Marshal(map[string]any{
		"title":   post.Title,
		"content": post.Content,
		"tags":    strings.Join(post.Tags, ","),
		"status":  post.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal post: %w", err)
	}

	endpoint := fmt.Sprintf("%s/sites/%s/posts/new", a.cfg.APIBase, url.PathEscape(post.Site))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
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

	var created struct {
		ID  int64  `json:"ID"`
		URL string `json:"URL"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("decode post response: %w", err)
	}

	return &driven.PublishOutcome{
		URL:        created.URL,
		ExternalID: fmt.Sprintf("%d", created.ID),
	}, nil
}

func (a *Adapter) get(ctx context.Context, endpoint, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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
	return body, nil
}
