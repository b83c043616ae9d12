// Package wix implements the Wix provider adapter.
//
// Wix access tokens are short-lived and the refresh token rotates on every
// refresh, so the exchange and refresh paths must both persist whatever
// refresh token comes back.
package wix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/publica-labs/publica-core/internal/adapters/driven/providers"
	"github.com/publica-labs/publica-core/internal/core/domain"
	"github.com/publica-labs/publica-core/internal/core/ports/driven"
)

// Ensure Adapter implements the interface.
var _ driven.ProviderAdapter = (*Adapter)(nil)

const (
	defaultInstallURL = "https://www.wix.com/installer/install"
	defaultTokenURL   = "https://www.wix.com/oauth/access"
	defaultAPIBase    = "https://www.wixapis.com"

	// Wix access tokens expire after roughly five minutes; the token
	// endpoint does not report an expiry, so we assume this.
	accessTokenLifetime = 5 * time.Minute
)

// Config holds Wix application credentials.
type Config struct {
	AppID     string
	AppSecret string

	InstallURL string
	TokenURL   string
	APIBase    string
}

// Adapter talks to the Wix OAuth and REST APIs.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a Wix adapter.
func New(cfg Config) *Adapter {
	if cfg.InstallURL == "" {
		cfg.InstallURL = defaultInstallURL
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
	return domain.ProviderTypeWix
}

// BuildAuthURL constructs the Wix app installer URL.
func (a *Adapter) BuildAuthURL(state, redirectURI string) string {
	params := url.Values{
		"appId":       {a.cfg.AppID},
		"redirectUrl": {redirectURI},
		"state":       {state},
	}
	return a.cfg.InstallURL + "?" + params.Encode()
}

// tokenRequest is the JSON body of the Wix token endpoint. Unlike most
// providers Wix takes JSON, not form encoding.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ExchangeCode exchanges an authorization code for tokens.
func (a *Adapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*driven.AdapterToken, error) {
	return a.requestToken(ctx, tokenRequest{
		GrantType:    "authorization_code",
		ClientID:     a.cfg.AppID,
		ClientSecret: a.cfg.AppSecret,
		Code:         code,
	})
}

// RefreshToken obtains fresh tokens. The returned refresh token replaces
// the one used; Wix invalidates it.
func (a *Adapter) RefreshToken(ctx context.Context, refreshToken string) (*driven.AdapterToken, error) {
	return a.requestToken(ctx, tokenRequest{
		GrantType:    "refresh_token",
		ClientID:     a.cfg.AppID,
		ClientSecret: a.cfg.AppSecret,
		RefreshToken: refreshToken,
	})
}

func (a *Adapter) requestToken(ctx context.Context, tokenReq tokenRequest) (*driven.AdapterToken, error) {
	reqBody, err := json.Marshal(tokenReq)
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
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

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	return &driven.AdapterToken{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresIn:    int(accessTokenLifetime.Seconds()),
	}, nil
}

// FetchAccountInfo retrieves the installed site's display metadata.
func (a *Adapter) FetchAccountInfo(ctx context.Context, accessToken string) (driven.AccountInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.APIBase+"/apps/v1/instance", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", accessToken)

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

	var instance struct {
		Site struct {
			SiteDisplayName string `json:"siteDisplayName"`
			URL             string `json:"url"`
			OwnerEmail      string `json:"ownerEmail"`
		} `json:"site"`
	}
	if err := json.Unmarshal(body, &instance); err != nil {
		return nil, fmt.Errorf("decode instance: %w", err)
	}

	return driven.AccountInfo{
		"email":    instance.Site.OwnerEmail,
		"name":     instance.Site.SiteDisplayName,
		"blog_url": instance.Site.URL,
	}, nil
}

// publishPayload is the expected shape of the opaque payload for Wix.
type publishPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Publish creates a blog draft and publishes it. Two calls: the Wix Blog
// API has no single create-and-publish operation.
func (a *Adapter) Publish(ctx context.Context, accessToken string, payload domain.PublishPayload) (*driven.PublishOutcome, error) {
	var post publishPayload
	if err := json.Unmarshal(payload, &post); err != nil {
		return nil, domain.NewProviderError(a.Type(), domain.ErrorKindValidation, 0,
			fmt.Errorf("decode payload: %w", err))
	}
	if post.Title == "" {
		return nil, domain.NewProviderError(a.Type(), domain.ErrorKindValidation, 0,
			fmt.Errorf("payload missing title"))
	}

	draftID, err := a.createDraft(ctx, accessToken, post)
	if err != nil {
		return nil, err
	}
	return a.publishDraft(ctx, accessToken, draftID)
}

func (a *Adapter) createDraft(ctx context.Context, accessToken string, post publishPayload) (string, error) {
	reqBody, err := json.Marshal(map[string]any{
		"draftPost": map[string]any{
			"title":   post.Title,
			"excerpt": post.Content,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal draft: %w", err)
	}

	body, err := a.post(ctx, a.cfg.APIBase+"/blog/v3/draft-posts", accessToken, reqBody)
	if err != nil {
		return "", err
	}

	var created struct {
		DraftPost struct {
			ID string `json:"id"`
		} `json:"draftPost"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode draft response: %w", err)
	}
	return created.DraftPost.ID, nil
}

func (a *Adapter) publishDraft(ctx context.Context, accessToken, draftID string) (*driven.PublishOutcome, error) {
	endpoint := fmt.Sprintf("%s/blog/v3/draft-posts/%s/publish", a.cfg.APIBase, url.PathEscape(draftID))
	body, err := a.post(ctx, endpoint, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var published struct {
		PostID string `json:"postId"`
		Post   struct {
			URL struct {
				Base string `json:"base"`
				Path string `json:"path"`
			} `json:"url"`
		} `json:"post"`
	}
	if err := json.Unmarshal(body, &published); err != nil {
		return nil, fmt.Errorf("decode publish response: %w", err)
	}

	externalID := published.PostID
	if externalID == "" {
		externalID = draftID
	}
	return &driven.PublishOutcome{
		URL:        published.Post.URL.Base + published.Post.URL.Path,
		ExternalID: externalID,
	}, nil
}

func (a *Adapter) post(ctx context.Context, endpoint, accessToken string, reqBody []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", accessToken)
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
	return body, nil
}
