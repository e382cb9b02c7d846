package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/authgate/authgate/internal/metrics"
	"github.com/authgate/authgate/internal/oauth"
	"github.com/authgate/authgate/internal/observability/logger"
	"github.com/authgate/authgate/internal/security/secretbox"
	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/internal/util"
)

// accessExpiryBuffer is how close to expiry an access token is already
// treated as expired, so a token handed to a caller survives the calls
// the caller is about to make with it.
const accessExpiryBuffer = 5 * time.Minute

// LifecycleDeps wires the token lifecycle manager.
type LifecycleDeps struct {
	Registry *oauth.Registry
	Box      *secretbox.Codec
	Sessions SessionStore

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// Lifecycle owns the session token state machine: it decides when stored
// provider tokens are stale, refreshes them in place, and moves sessions
// into their terminal states.
type Lifecycle struct {
	deps LifecycleDeps
	sf   singleflight.Group
}

// NewLifecycle builds the manager.
func NewLifecycle(deps LifecycleDeps) *Lifecycle {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Lifecycle{deps: deps}
}

// IsAccessTokenExpired applies the expiry buffer: a token inside the last
// five minutes of its life counts as expired.
func (l *Lifecycle) IsAccessTokenExpired(sess *store.Session) bool {
	return !l.deps.Now().Add(accessExpiryBuffer).Before(sess.AccessTokenExpiresAt)
}

// IsRefreshTokenExpired reports whether the stored refresh token is past
// its lifetime. No buffer here; the token works until the instant it dies.
func (l *Lifecycle) IsRefreshTokenExpired(sess *store.Session) bool {
	return !l.deps.Now().Before(sess.RefreshTokenExpiresAt)
}

// RefreshResult is the outcome of a successful rotation: the plaintext
// provider access token plus the stored expiries. The refresh token value
// itself never leaves this package.
type RefreshResult struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
}

// GetValidAccessToken returns a usable provider access token for the
// session. The hot path (token still fresh) decrypts and returns without
// any network traffic; otherwise it falls through to RefreshAccessToken.
func (l *Lifecycle) GetValidAccessToken(ctx context.Context, sessionID string) (*RefreshResult, error) {
	sess, err := l.getActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !l.IsAccessTokenExpired(sess) {
		plain, err := l.deps.Box.Decrypt(sess.AccessToken)
		if err != nil {
			return nil, err
		}
		return &RefreshResult{
			AccessToken:           plain,
			AccessTokenExpiresAt:  sess.AccessTokenExpiresAt,
			RefreshTokenExpiresAt: sess.RefreshTokenExpiresAt,
		}, nil
	}
	return l.RefreshAccessToken(ctx, sessionID)
}

// RefreshAccessToken rotates the session's provider tokens in place.
// Concurrent calls for one session collapse into a single provider round
// trip. Any provider-side failure revokes the session: a rejected refresh
// token is unrecoverable, and leaving the session active would only retry
// a dead credential forever.
func (l *Lifecycle) RefreshAccessToken(ctx context.Context, sessionID string) (*RefreshResult, error) {
	v, err, _ := l.sf.Do(sessionID, func() (any, error) {
		return l.refresh(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RefreshResult), nil
}

func (l *Lifecycle) refresh(ctx context.Context, sessionID string) (*RefreshResult, error) {
	log := logger.From(ctx).With(
		logger.Component("auth.lifecycle"),
		logger.Op("refresh"),
		logger.SessionID(sessionID),
	)

	// Re-fetch inside the flight: a concurrent winner may have rotated or
	// killed the session while this call waited.
	sess, err := l.getActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	outcome := metrics.OutcomeError
	defer func() {
		metrics.RefreshTotal.WithLabelValues(sess.Provider, outcome).Inc()
	}()

	if l.IsRefreshTokenExpired(sess) {
		if err := l.deps.Sessions.UpdateStatus(ctx, sess.ID, store.SessionExpired, nil); err != nil {
			log.Error("marking session expired failed", logger.Err(err))
		}
		return nil, ErrRefreshTokenExpired
	}

	refreshPlain, err := l.deps.Box.Decrypt(sess.RefreshToken)
	if err != nil {
		// Integrity failure is a data problem, not a provider verdict;
		// the session is left alone for investigation.
		log.Error("stored refresh token failed decryption", logger.Err(err))
		return nil, err
	}

	provider, err := l.deps.Registry.Get(sess.Provider)
	if err != nil {
		return nil, err
	}

	tokens, err := provider.Refresh(ctx, refreshPlain)
	if err == nil && tokens.AccessToken == "" {
		err = fmt.Errorf("%w: empty access token", oauth.ErrTokenExchange)
	}
	if err != nil {
		now := l.deps.Now().UTC()
		if stErr := l.deps.Sessions.UpdateStatus(ctx, sess.ID, store.SessionRevoked, &now); stErr != nil {
			log.Error("revoking session failed", logger.Err(stErr))
		}
		log.Warn("provider refused refresh, session revoked",
			logger.Provider(sess.Provider), logger.Err(err))
		return nil, err
	}

	now := l.deps.Now().UTC()
	encAccess, err := l.deps.Box.Encrypt(tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt rotated access token: %w", err)
	}
	accessExpiry := now.Add(time.Hour)
	if tokens.ExpiresIn > 0 {
		accessExpiry = now.Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}

	upd := store.TokenUpdate{
		AccessToken:          encAccess,
		AccessTokenExpiresAt: accessExpiry,
	}
	refreshExpiry := sess.RefreshTokenExpiresAt
	if tokens.RefreshToken != "" {
		encRefresh, err := l.deps.Box.Encrypt(tokens.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("encrypt rotated refresh token: %w", err)
		}
		if tokens.RefreshExpiresIn > 0 {
			refreshExpiry = now.Add(time.Duration(tokens.RefreshExpiresIn) * time.Second)
		}
		upd.RefreshToken = &encRefresh
		upd.RefreshTokenExpiresAt = &refreshExpiry
		upd.RefreshTokenHash = secretbox.Fingerprint(tokens.RefreshToken)
	}

	if err := l.deps.Sessions.UpdateTokens(ctx, nil, sess.ID, upd); err != nil {
		return nil, err
	}

	outcome = metrics.OutcomeOK
	log.Info("provider tokens rotated",
		logger.Provider(sess.Provider),
		logger.String("access_token", util.MaskToken(tokens.AccessToken)),
		logger.String("rotated_refresh", fmt.Sprintf("%t", tokens.RefreshToken != "")),
		logger.String("scope", strings.TrimSpace(tokens.Scope)),
	)
	return &RefreshResult{
		AccessToken:           tokens.AccessToken,
		AccessTokenExpiresAt:  accessExpiry,
		RefreshTokenExpiresAt: refreshExpiry,
	}, nil
}

// Revoke moves an active session to revoked (logout). Revoking a session
// already in a terminal state is a no-op.
func (l *Lifecycle) Revoke(ctx context.Context, sessionID string) error {
	sess, err := l.deps.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if store.IsNotFound(err) {
			return ErrSessionNotFound
		}
		return err
	}
	if sess.Status.Terminal() {
		return nil
	}
	now := l.deps.Now().UTC()
	if err := l.deps.Sessions.UpdateStatus(ctx, sess.ID, store.SessionRevoked, &now); err != nil {
		return err
	}
	logger.From(ctx).Info("session revoked",
		logger.Component("auth.lifecycle"),
		logger.Op("revoke"),
		logger.SessionID(sessionID),
	)
	return nil
}

func (l *Lifecycle) getActive(ctx context.Context, sessionID string) (*store.Session, error) {
	sess, err := l.deps.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.Status != store.SessionActive {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotActive, sess.Status)
	}
	return sess, nil
}
