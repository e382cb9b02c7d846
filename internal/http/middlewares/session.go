package middlewares

import (
	"context"
	"net/http"
	"strings"
	"time"

	httperrors "github.com/authgate/authgate/internal/http/errors"
	"github.com/authgate/authgate/internal/observability/logger"
	"github.com/authgate/authgate/internal/security/signer"
	"github.com/authgate/authgate/internal/store"
)

// AuthCookieName is the access credential cookie set in cookie mode.
const AuthCookieName = "auth_token"

type ctxKey int

const (
	userKey ctxKey = iota
	sessionKey
)

// UserFromContext returns the resolved user, if any.
func UserFromContext(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(userKey).(*store.User)
	return u, ok
}

// SessionFromContext returns the resolved session, if any.
func SessionFromContext(ctx context.Context) (*store.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*store.Session)
	return s, ok
}

// SessionSource is the slice of the session store the resolver needs.
type SessionSource interface {
	GetByID(ctx context.Context, id string) (*store.Session, error)
	Touch(ctx context.Context, id string) error
}

// UserSource is the slice of the user store the resolver needs.
type UserSource interface {
	GetByID(ctx context.Context, id string) (*store.User, error)
}

// WithSession resolves the caller's identity from a bearer token or the
// auth cookie. Resolution NEVER fails the request: on any problem
// (missing credential, bad signature, dead session) the request proceeds
// anonymously and RequireSession decides later. Successful resolution
// attaches user + session to the context and bumps last_accessed_at.
func WithSession(sg *signer.Signer, sessions SessionSource, users UserSource) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, ok := resolve(r, sg, sessions, users)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolve(r *http.Request, sg *signer.Signer, sessions SessionSource, users UserSource) (context.Context, bool) {
	ctx := r.Context()

	token := bearerToken(r)
	if token == "" {
		if c, err := r.Cookie(AuthCookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return ctx, false
	}

	claims, err := sg.Verify(signer.PurposeAccess, token)
	if err != nil {
		return ctx, false
	}
	sessionID := signer.StringClaim(claims, "sid")
	userID := signer.StringClaim(claims, "sub")
	if sessionID == "" || userID == "" {
		return ctx, false
	}

	sess, err := sessions.GetByID(ctx, sessionID)
	if err != nil || sess.Status != store.SessionActive || !time.Now().Before(sess.ExpiresAt) {
		return ctx, false
	}
	user, err := users.GetByID(ctx, userID)
	if err != nil || user.ID != sess.UserID {
		return ctx, false
	}

	if err := sessions.Touch(ctx, sess.ID); err != nil {
		logger.From(ctx).Debug("session touch failed",
			logger.SessionID(sess.ID), logger.Err(err))
	}

	ctx = context.WithValue(ctx, userKey, user)
	ctx = context.WithValue(ctx, sessionKey, sess)
	ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(user.ID)))
	return ctx, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireSession rejects requests that reached the handler without a
// resolved session.
func RequireSession() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := SessionFromContext(r.Context()); !ok {
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
