package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/authgate/authgate/internal/auth"
	httperrors "github.com/authgate/authgate/internal/http/errors"
	"github.com/authgate/authgate/internal/http/helpers"
	"github.com/authgate/authgate/internal/http/middlewares"
	"github.com/authgate/authgate/internal/oauth"
	"github.com/authgate/authgate/internal/security/secretbox"
	"github.com/authgate/authgate/internal/security/signer"
	"github.com/authgate/authgate/internal/store"
)

type tokenLifecycle interface {
	GetValidAccessToken(ctx context.Context, sessionID string) (*auth.RefreshResult, error)
	Revoke(ctx context.Context, sessionID string) error
}

// AuthDeps wires the session endpoints.
type AuthDeps struct {
	Signer    *signer.Signer
	Lifecycle tokenLifecycle

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Cookies    CookieConfig
}

// Auth serves refresh, logout and me.
type Auth struct {
	deps AuthDeps
}

// NewAuth builds the session endpoint handlers.
func NewAuth(deps AuthDeps) *Auth { return &Auth{deps: deps} }

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates the session's provider tokens and reissues both signed
// credentials. The client presents this service's refresh credential via
// body, cookie or bearer header; raw session ids are never accepted.
func (h *Auth) Refresh(w http.ResponseWriter, r *http.Request) {
	var cred string
	var fromCookie bool
	if r.ContentLength != 0 {
		var req refreshRequest
		if !helpers.ReadJSON(w, r, &req) {
			return
		}
		cred = req.RefreshToken
	}
	if cred == "" {
		if c, err := r.Cookie(RefreshCookieName); err == nil && c.Value != "" {
			cred, fromCookie = c.Value, true
		}
	}
	if cred == "" {
		if hdr := r.Header.Get("Authorization"); len(hdr) > 7 && hdr[:7] == "Bearer " {
			cred = hdr[7:]
		}
	}
	if cred == "" {
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("missing refresh token"))
		return
	}

	claims, err := h.deps.Signer.Verify(signer.PurposeRefresh, cred)
	if err != nil {
		if errors.Is(err, signer.ErrTokenExpired) {
			httperrors.WriteError(w, httperrors.ErrReauthenticate.WithCause(err))
			return
		}
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithCause(err))
		return
	}
	sessionID := signer.StringClaim(claims, "sid")
	userID := signer.StringClaim(claims, "sub")
	if sessionID == "" || userID == "" {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	// The lifecycle only contacts the provider when the stored access
	// token is inside its expiry buffer; otherwise this is a cheap local
	// re-issue of our own credentials.
	if _, err := h.deps.Lifecycle.GetValidAccessToken(r.Context(), sessionID); err != nil {
		httperrors.WriteError(w, mapRefreshError(err))
		return
	}

	access, refresh, err := issueCredentials(h.deps.Signer, userID, sessionID,
		h.deps.AccessTTL, h.deps.RefreshTTL)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	if fromCookie {
		SetAuthCookies(w, h.deps.Cookies, access, refresh, h.deps.AccessTTL, h.deps.RefreshTTL)
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{
		"token_type":    "Bearer",
		"access_token":  access,
		"expires_in":    int(h.deps.AccessTTL / time.Second),
		"refresh_token": refresh,
	})
}

func mapRefreshError(err error) error {
	switch {
	case errors.Is(err, auth.ErrSessionNotFound):
		return httperrors.ErrNotFound.WithCause(err)
	case errors.Is(err, auth.ErrSessionNotActive),
		errors.Is(err, auth.ErrRefreshTokenExpired),
		errors.Is(err, oauth.ErrTokenExchange):
		return httperrors.ErrReauthenticate.WithCause(err)
	case errors.Is(err, secretbox.ErrIntegrity):
		return httperrors.ErrInternal.WithCause(err)
	default:
		return httperrors.ErrInternal.WithCause(err)
	}
}

// Logout revokes the resolved session and clears the cookies. Runs behind
// RequireSession.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := middlewares.SessionFromContext(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	if err := h.deps.Lifecycle.Revoke(r.Context(), sess.ID); err != nil && !errors.Is(err, auth.ErrSessionNotFound) {
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}
	ClearAuthCookies(w, h.deps.Cookies)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the resolved user and session summary. Provider tokens are
// never part of any response.
func (h *Auth) Me(w http.ResponseWriter, r *http.Request) {
	user, okU := middlewares.UserFromContext(r.Context())
	sess, okS := middlewares.SessionFromContext(r.Context())
	if !okU || !okS {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{
		"user": userPayload(user),
		"session": map[string]any{
			"id":         sess.ID,
			"provider":   sess.Provider,
			"created_at": sess.CreatedAt,
			"expires_at": sess.ExpiresAt,
		},
	})
}

func userPayload(u *store.User) map[string]any {
	return map[string]any{
		"id":         u.ID,
		"email":      u.Email,
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"avatar_url": u.AvatarURL,
		"created_at": u.CreatedAt,
	}
}
