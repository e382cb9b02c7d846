// Package github implements the GitHub provider adapter. GitHub is plain
// OAuth 2.0 without ID tokens, so the profile comes from the REST API, and
// private emails need a second call to /user/emails. Refresh tokens are
// only issued for apps with expiring user tokens enabled.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/authgate/authgate/internal/oauth"
)

const ProviderName = "github"

const (
	defaultAuthURL  = "https://github.com/login/oauth/authorize"
	defaultTokenURL = "https://github.com/login/oauth/access_token"
	defaultUserURL  = "https://api.github.com/user"
	defaultEmailURL = "https://api.github.com/user/emails"
)

var defaultScopes = []string{"read:user", "user:email"}

// Factory builds the adapter for the registry.
func Factory(cfg oauth.Config) (oauth.Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("github: client_id and client_secret are required")
	}
	return New(cfg), nil
}

// Provider is the GitHub adapter.
type Provider struct {
	clientID     string
	clientSecret string
	redirectURL  string
	scopes       []string

	http     *http.Client
	authURL  string
	tokenURL string
	userURL  string
	emailURL string
}

// New creates a GitHub adapter from client credentials.
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
		authURL:      defaultAuthURL,
		tokenURL:     defaultTokenURL,
		userURL:      defaultUserURL,
		emailURL:     defaultEmailURL,
	}
}

func (p *Provider) Name() string            { return ProviderName }
func (p *Provider) DefaultScopes() []string { return p.scopes }

// AuthorizationURL builds the authorization redirect.
func (p *Provider) AuthorizationURL(_ context.Context, state string) (string, error) {
	u, err := url.Parse(p.authURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("client_id", p.clientID)
	q.Set("redirect_uri", p.redirectURL)
	q.Set("scope", strings.Join(p.scopes, " "))
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int    `json:"expires_in"`
	RefreshTokenExpiresIn int    `json:"refresh_token_expires_in"`
	Scope                 string `json:"scope"`
	Error                 string `json:"error"`
	ErrorDescription      string `json:"error_description"`
}

// Exchange trades an authorization code for tokens.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth.TokenSet, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("redirect_uri", p.redirectURL)
	return p.tokenCall(ctx, form)
}

// Refresh rotates an expiring user token.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*oauth.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return p.tokenCall(ctx, form)
}

func (p *Provider) tokenCall(ctx context.Context, form url.Values) (*oauth.TokenSet, error) {
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrTokenExchange, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrTokenExchange, err)
	}
	defer resp.Body.Close()

	// GitHub reports grant errors inside a 200 body.
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", oauth.ErrTokenExchange, err)
	}
	if tr.Error != "" {
		return nil, fmt.Errorf("%w: %s %s", oauth.ErrTokenExchange, tr.Error, tr.ErrorDescription)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: http %d", oauth.ErrTokenExchange, resp.StatusCode)
	}

	return &oauth.TokenSet{
		AccessToken:      tr.AccessToken,
		RefreshToken:     tr.RefreshToken,
		ExpiresIn:        tr.ExpiresIn,
		RefreshExpiresIn: tr.RefreshTokenExpiresIn,
		Scope:            strings.ReplaceAll(tr.Scope, ",", " "),
	}, nil
}

// UserInfo fetches the profile, falling back to /user/emails when the
// profile email is private.
func (p *Provider) UserInfo(ctx context.Context, accessToken string) (*oauth.UserProfile, error) {
	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := p.apiGet(ctx, p.userURL, accessToken, &user); err != nil {
		return nil, err
	}

	email, verified := user.Email, false
	if email == "" {
		var err error
		email, verified, err = p.primaryEmail(ctx, accessToken)
		if err != nil {
			return nil, err
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &oauth.UserProfile{
		ID:            strconv.FormatInt(user.ID, 10),
		Email:         email,
		EmailVerified: verified,
		Name:          name,
		Picture:       user.AvatarURL,
	}, nil
}

func (p *Provider) primaryEmail(ctx context.Context, accessToken string) (string, bool, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := p.apiGet(ctx, p.emailURL, accessToken, &emails); err != nil {
		return "", false, err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, true, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, true, nil
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, emails[0].Verified, nil
	}
	return "", false, fmt.Errorf("%w: no email on account", oauth.ErrUserInfo)
}

func (p *Provider) apiGet(ctx context.Context, rawURL, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", oauth.ErrUserInfo, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", oauth.ErrUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: http %d", oauth.ErrUserInfo, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", oauth.ErrUserInfo, err)
	}
	return nil
}
