// Package google implements the Google provider adapter. Endpoints are
// resolved from the OIDC discovery document and cached for a day.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/authgate/authgate/internal/oauth"
)

const ProviderName = "google"

const (
	defaultDiscoveryURL = "https://accounts.google.com/.well-known/openid-configuration"
	defaultUserInfoURL  = "https://openidconnect.googleapis.com/v1/userinfo"
)

var defaultScopes = []string{"openid", "email", "profile"}

// Factory builds the adapter for the registry.
func Factory(cfg oauth.Config) (oauth.Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("google: client_id and client_secret are required")
	}
	return New(cfg), nil
}

type discoveryDoc struct {
	Issuer        string `json:"issuer"`
	AuthEndpoint  string `json:"authorization_endpoint"`
	TokenEndpoint string `json:"token_endpoint"`
}

// Provider is the Google adapter.
type Provider struct {
	clientID     string
	clientSecret string
	redirectURL  string
	scopes       []string

	http         *http.Client
	discoveryURL string
	userInfoURL  string

	mu     sync.RWMutex
	disc   *discoveryDoc
	discAt time.Time
}

// New creates a Google adapter from client credentials.
func New(cfg oauth.Config) *Provider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	return &Provider{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURL:  cfg.RedirectURL,
		scopes:       scopes,
		http:         &http.Client{Timeout: 10 * time.Second},
		discoveryURL: defaultDiscoveryURL,
		userInfoURL:  defaultUserInfoURL,
	}
}

func (p *Provider) Name() string            { return ProviderName }
func (p *Provider) DefaultScopes() []string { return p.scopes }

func (p *Provider) discovery(ctx context.Context) (*discoveryDoc, error) {
	p.mu.RLock()
	disc, stale := p.disc, time.Since(p.discAt) > 24*time.Hour
	p.mu.RUnlock()
	if disc != nil && !stale {
		return disc, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.discoveryURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: discovery: %w", err)
	}
	defer resp.Body.Close()

	var dd discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&dd); err != nil {
		return nil, fmt.Errorf("google: discovery decode: %w", err)
	}

	p.mu.Lock()
	p.disc = &dd
	p.discAt = time.Now()
	p.mu.Unlock()
	return &dd, nil
}

// AuthorizationURL builds the consent-screen redirect. access_type=offline
// plus prompt=consent makes Google return a refresh token, which every
// session requires.
func (p *Provider) AuthorizationURL(ctx context.Context, state string) (string, error) {
	disc, err := p.discovery(ctx)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(disc.AuthEndpoint)
	if err != nil {
		return "", fmt.Errorf("google: bad auth endpoint: %w", err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", p.clientID)
	q.Set("redirect_uri", p.redirectURL)
	q.Set("scope", strings.Join(p.scopes, " "))
	q.Set("state", state)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("include_granted_scopes", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

// Exchange trades an authorization code for tokens.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.redirectURL)
	return p.tokenCall(ctx, form)
}

// Refresh mints a new access token. Google normally reuses the same
// refresh token, so TokenSet.RefreshToken is usually empty here.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*oauth.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return p.tokenCall(ctx, form)
}

func (p *Provider) tokenCall(ctx context.Context, form url.Values) (*oauth.TokenSet, error) {
	disc, err := p.discovery(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrTokenExchange, err)
	}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, disc.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrTokenExchange, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrTokenExchange, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return nil, fmt.Errorf("%w: http %d: %s %s", oauth.ErrTokenExchange, resp.StatusCode, e.Error, e.ErrorDescription)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", oauth.ErrTokenExchange, err)
	}
	return &oauth.TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    tr.ExpiresIn,
		Scope:        tr.Scope,
	}, nil
}

// UserInfo fetches the profile from the OIDC userinfo endpoint.
func (p *Provider) UserInfo(ctx context.Context, accessToken string) (*oauth.UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrUserInfo, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d", oauth.ErrUserInfo, resp.StatusCode)
	}

	var ui struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ui); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", oauth.ErrUserInfo, err)
	}

	return &oauth.UserProfile{
		ID:            ui.Sub,
		Email:         ui.Email,
		EmailVerified: ui.EmailVerified,
		Name:          ui.Name,
		GivenName:     ui.GivenName,
		FamilyName:    ui.FamilyName,
		Picture:       ui.Picture,
	}, nil
}
