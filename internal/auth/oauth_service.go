package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/authgate/authgate/internal/metrics"
	"github.com/authgate/authgate/internal/oauth"
	"github.com/authgate/authgate/internal/observability/logger"
	"github.com/authgate/authgate/internal/security/secretbox"
	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/internal/util"
)

// OAuthServiceDeps wires the callback orchestrator.
type OAuthServiceDeps struct {
	Registry *oauth.Registry
	Box      *secretbox.Codec
	Users    UserStore
	Sessions SessionStore
	Tx       TxRunner

	// Fallback lifetimes for providers that omit expiry hints.
	ProviderAccessTTL  time.Duration
	ProviderRefreshTTL time.Duration
}

// OAuthService turns an authorization code into a persisted user + session.
type OAuthService struct {
	deps OAuthServiceDeps
}

// NewOAuthService validates deps and builds the orchestrator.
func NewOAuthService(deps OAuthServiceDeps) *OAuthService {
	if deps.ProviderAccessTTL <= 0 {
		deps.ProviderAccessTTL = time.Hour
	}
	if deps.ProviderRefreshTTL <= 0 {
		deps.ProviderRefreshTTL = 90 * 24 * time.Hour
	}
	return &OAuthService{deps: deps}
}

// LoginResult is what a completed callback yields.
type LoginResult struct {
	User    *store.User
	Session *store.Session
}

// HandleCallback completes a provider login: exchanges the code, fetches
// the profile, and commits the user upsert plus the session insert as one
// transaction. Nothing is persisted if any step after the exchange fails.
// A unique-violation conflict (two callbacks racing for the same identity)
// is retried once from the upsert.
func (s *OAuthService) HandleCallback(ctx context.Context, providerName, code string) (*LoginResult, error) {
	log := logger.From(ctx).With(
		logger.Component("auth.oauth"),
		logger.Op("callback"),
		logger.Provider(providerName),
	)

	provider, err := s.deps.Registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	outcome := metrics.OutcomeError
	defer func() {
		metrics.CallbackTotal.WithLabelValues(providerName, outcome).Inc()
	}()

	tokens, err := provider.Exchange(ctx, code)
	if err != nil {
		log.Warn("code exchange failed", logger.Err(err))
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", oauth.ErrTokenExchange)
	}
	if tokens.RefreshToken == "" {
		return nil, ErrMissingRefreshToken
	}

	profile, err := provider.UserInfo(ctx, tokens.AccessToken)
	if err != nil {
		log.Warn("user info fetch failed", logger.Err(err))
		return nil, err
	}
	if profile.ID == "" || profile.Email == "" {
		return nil, ErrIncompleteUserInfo
	}
	givenName, familyName := oauth.SplitName(profile)

	encAccess, err := s.deps.Box.Encrypt(tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh, err := s.deps.Box.Encrypt(tokens.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt refresh token: %w", err)
	}

	now := time.Now().UTC()
	accessExpiry := now.Add(s.deps.ProviderAccessTTL)
	if tokens.ExpiresIn > 0 {
		accessExpiry = now.Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}
	refreshExpiry := now.Add(s.deps.ProviderRefreshTTL)
	if tokens.RefreshExpiresIn > 0 {
		refreshExpiry = now.Add(time.Duration(tokens.RefreshExpiresIn) * time.Second)
	}
	scope := tokens.Scope
	if scope == "" {
		scope = strings.Join(provider.DefaultScopes(), " ")
	}

	refreshHash := secretbox.Fingerprint(tokens.RefreshToken)
	result, err := s.persistLogin(ctx, providerName, profile, givenName, familyName,
		encAccess, encRefresh, refreshHash, accessExpiry, refreshExpiry, scope, now)
	if store.IsConflict(err) {
		log.Info("login race detected, retrying once")
		result, err = s.persistLogin(ctx, providerName, profile, givenName, familyName,
			encAccess, encRefresh, refreshHash, accessExpiry, refreshExpiry, scope, now)
	}
	if err != nil {
		return nil, err
	}

	outcome = metrics.OutcomeOK
	log.Info("login completed",
		logger.UserID(result.User.ID),
		logger.SessionID(result.Session.ID),
		logger.String("email", util.MaskEmail(result.User.Email)),
	)
	return result, nil
}

func (s *OAuthService) persistLogin(
	ctx context.Context,
	providerName string,
	profile *oauth.UserProfile,
	givenName, familyName string,
	encAccess, encRefresh secretbox.EncryptedValue,
	refreshHash string,
	accessExpiry, refreshExpiry time.Time,
	scope string,
	now time.Time,
) (*LoginResult, error) {
	var result LoginResult
	err := s.deps.Tx.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		user, err := s.deps.Users.Upsert(ctx, tx, store.UpsertUserInput{
			ProviderAccountID: profile.ID,
			Email:             profile.Email,
			FirstName:         givenName,
			LastName:          familyName,
			AvatarURL:         profile.Picture,
		})
		if err != nil {
			return err
		}

		sess := &store.Session{
			ID:                    uuid.NewString(),
			UserID:                user.ID,
			Status:                store.SessionActive,
			Provider:              providerName,
			AccessToken:           encAccess,
			AccessTokenExpiresAt:  accessExpiry,
			RefreshToken:          encRefresh,
			RefreshTokenExpiresAt: refreshExpiry,
			RefreshTokenHash:      refreshHash,
			Scope:                 scope,
			ProviderAccountID:     profile.ID,
			LastAccessedAt:        now,
			ExpiresAt:             refreshExpiry,
		}
		if err := s.deps.Sessions.Create(ctx, tx, sess); err != nil {
			return err
		}

		result.User = user
		result.Session = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
