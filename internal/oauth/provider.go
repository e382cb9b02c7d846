// Package oauth defines the contract every identity provider adapter
// implements, and the registry that maps provider ids to adapters. No call
// site outside this package may branch on a provider id.
package oauth

import (
	"context"
	"errors"
	"strings"
)

// Typed provider errors. Adapters wrap these so callers can dispatch on
// kind without inspecting messages.
var (
	// ErrUnsupportedProvider is returned by the registry for unknown ids.
	ErrUnsupportedProvider = errors.New("oauth: unsupported provider")

	// ErrTokenExchange covers any failed code-exchange or refresh call.
	ErrTokenExchange = errors.New("oauth: token exchange failed")

	// ErrUserInfo covers a failed identity fetch.
	ErrUserInfo = errors.New("oauth: userinfo fetch failed")
)

// TokenSet is the normalized result of a code exchange or refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string // empty when the provider did not rotate/issue one
	Scope        string
	ExpiresIn    int // seconds; 0 when the provider omitted it

	// RefreshExpiresIn is set by providers that expire refresh tokens
	// (e.g. GitHub apps). Seconds; 0 when unknown.
	RefreshExpiresIn int
}

// UserProfile is the normalized identity from any provider.
type UserProfile struct {
	ID            string // the provider's stable subject identifier
	Email         string
	Name          string
	GivenName     string
	FamilyName    string
	Picture       string
	EmailVerified bool
}

// Provider is the capability set implemented per identity provider.
type Provider interface {
	Name() string

	// AuthorizationURL builds the consent-screen redirect, embedding the
	// signed state and the adapter's default scopes.
	AuthorizationURL(ctx context.Context, state string) (string, error)

	// Exchange trades an authorization code for provider tokens.
	Exchange(ctx context.Context, code string) (*TokenSet, error)

	// Refresh mints a new access token from a refresh token. Fails with
	// ErrTokenExchange when the provider rejects the refresh token.
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)

	// UserInfo fetches the profile behind an access token.
	UserInfo(ctx context.Context, accessToken string) (*UserProfile, error)

	DefaultScopes() []string
}

// Config carries the per-provider OAuth client credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// SplitName resolves first/last name from a profile. Providers that return
// separated fields win; otherwise the combined name is split on whitespace,
// with "User" as the placeholder when nothing usable was returned.
func SplitName(p *UserProfile) (first, last string) {
	if p.GivenName != "" {
		return p.GivenName, p.FamilyName
	}
	fields := strings.Fields(p.Name)
	if len(fields) == 0 {
		return "User", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
