// Package handlers implements the public HTTP surface.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/cache"
	httperrors "github.com/authgate/authgate/internal/http/errors"
	"github.com/authgate/authgate/internal/http/helpers"
	"github.com/authgate/authgate/internal/oauth"
	"github.com/authgate/authgate/internal/observability/logger"
	"github.com/authgate/authgate/internal/security/secretbox"
	"github.com/authgate/authgate/internal/security/signer"
)

// Response modes for the login flow. Browser flows redirect and get
// cookies; API clients ask for json and get the tokens in the body.
const (
	ModeRedirect = "redirect"
	ModeJSON     = "json"
)

type callbackService interface {
	HandleCallback(ctx context.Context, provider, code string) (*auth.LoginResult, error)
}

// OAuthDeps wires the login flow handlers.
type OAuthDeps struct {
	Registry *oauth.Registry
	Signer   *signer.Signer
	Service  callbackService
	States   cache.Cache

	StateTTL   time.Duration
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	Cookies           CookieConfig
	PostLoginRedirect string
}

// OAuth serves the provider listing, login start and callback endpoints.
type OAuth struct {
	deps OAuthDeps
}

// NewOAuth builds the login flow handlers.
func NewOAuth(deps OAuthDeps) *OAuth { return &OAuth{deps: deps} }

// Providers lists the provider ids accepted by the start endpoint.
func (h *OAuth) Providers(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]any{
		"providers": h.deps.Registry.List(),
	})
}

// Start begins a login: it wraps a signed state token into the provider's
// consent URL and either redirects or hands the URL back as JSON.
func (h *OAuth) Start(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	if !h.deps.Registry.Has(providerName) {
		httperrors.WriteError(w, h.unsupportedProvider(providerName))
		return
	}

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = ModeRedirect
	}
	if mode != ModeRedirect && mode != ModeJSON {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail(
			fmt.Sprintf("mode must be %q or %q", ModeRedirect, ModeJSON)))
		return
	}

	state, err := h.deps.Signer.Sign(signer.PurposeState, map[string]any{
		"provider": providerName,
		"mode":     mode,
	}, h.deps.StateTTL)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	provider, err := h.deps.Registry.Get(providerName)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}
	authURL, err := provider.AuthorizationURL(r.Context(), state)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	if mode == ModeJSON {
		helpers.WriteJSON(w, http.StatusOK, map[string]string{
			"authorization_url": authURL,
			"state":             state,
		})
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// invalidState is the uniform rejection for anything wrong with the CSRF
// state: expired, tampered, replayed or bound to another provider. The
// client's only recovery is restarting the login.
var invalidState = httperrors.ErrBadRequest.WithDetail(
	"login state is invalid or expired, please retry the sign-in")

// Callback completes a login. The state token is verified before anything
// else, including the provider's own error report: an attacker must not be
// able to drive this endpoint at all without a state we issued. Only after
// the state checks out is a provider-reported error relayed verbatim.
func (h *OAuth) Callback(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	q := r.URL.Query()

	claims, err := h.deps.Signer.Verify(signer.PurposeState, q.Get("state"))
	if err != nil {
		httperrors.WriteError(w, invalidState.WithCause(err))
		return
	}
	if signer.StringClaim(claims, "provider") != providerName {
		httperrors.WriteError(w, invalidState)
		return
	}

	if provErr := q.Get("error"); provErr != "" {
		detail := provErr
		if desc := q.Get("error_description"); desc != "" {
			detail += ": " + desc
		}
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail(detail))
		return
	}

	// One shot per state: the jti is burned on first sight.
	jti := signer.StringClaim(claims, "jti")
	fresh, err := h.deps.States.Add(r.Context(), "state:"+jti, []byte{1}, h.deps.StateTTL)
	if err != nil {
		logger.From(r.Context()).Warn("state replay guard unavailable", logger.Err(err))
	} else if !fresh {
		httperrors.WriteError(w, invalidState)
		return
	}

	code := q.Get("code")
	if code == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("missing authorization code"))
		return
	}

	res, err := h.deps.Service.HandleCallback(r.Context(), providerName, code)
	if err != nil {
		httperrors.WriteError(w, h.mapCallbackError(providerName, err))
		return
	}

	access, refresh, err := issueCredentials(h.deps.Signer, res.User.ID, res.Session.ID,
		h.deps.AccessTTL, h.deps.RefreshTTL)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	if signer.StringClaim(claims, "mode") == ModeJSON {
		helpers.WriteJSON(w, http.StatusOK, map[string]any{
			"token_type":    "Bearer",
			"access_token":  access,
			"expires_in":    int(h.deps.AccessTTL / time.Second),
			"refresh_token": refresh,
			"user":          userPayload(res.User),
		})
		return
	}

	SetAuthCookies(w, h.deps.Cookies, access, refresh, h.deps.AccessTTL, h.deps.RefreshTTL)
	http.Redirect(w, r, h.deps.PostLoginRedirect, http.StatusFound)
}

func (h *OAuth) unsupportedProvider(name string) *httperrors.AppError {
	return httperrors.ErrBadRequest.WithDetail(fmt.Sprintf(
		"unsupported provider %q; available: %s",
		name, strings.Join(h.deps.Registry.List(), ", ")))
}

func (h *OAuth) mapCallbackError(providerName string, err error) error {
	switch {
	case errors.Is(err, oauth.ErrUnsupportedProvider):
		return h.unsupportedProvider(providerName)
	case errors.Is(err, auth.ErrMissingRefreshToken):
		return httperrors.ErrBadRequest.
			WithDetail("the provider granted no refresh token; revoke prior consent and retry").
			WithCause(err)
	case errors.Is(err, auth.ErrIncompleteUserInfo):
		return httperrors.ErrBadRequest.
			WithDetail("the provider returned an incomplete profile").
			WithCause(err)
	case errors.Is(err, oauth.ErrTokenExchange), errors.Is(err, oauth.ErrUserInfo):
		return httperrors.ErrBadRequest.
			WithDetail("the provider rejected the login, please retry the sign-in").
			WithCause(err)
	case errors.Is(err, secretbox.ErrIntegrity):
		return httperrors.ErrInternal.WithCause(err)
	default:
		return httperrors.ErrInternal.WithCause(err)
	}
}

func issueCredentials(sg *signer.Signer, userID, sessionID string, accessTTL, refreshTTL time.Duration) (access, refresh string, err error) {
	claims := map[string]any{"sub": userID, "sid": sessionID}
	access, err = sg.Sign(signer.PurposeAccess, claims, accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = sg.Sign(signer.PurposeRefresh, claims, refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
