// Package app is the composition root: it builds every component from the
// config and hands the server to the CLI.
package app

import (
	"context"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/cache"
	"github.com/authgate/authgate/internal/config"
	httpapi "github.com/authgate/authgate/internal/http"
	"github.com/authgate/authgate/internal/http/handlers"
	"github.com/authgate/authgate/internal/oauth"
	"github.com/authgate/authgate/internal/oauth/github"
	"github.com/authgate/authgate/internal/oauth/google"
	"github.com/authgate/authgate/internal/observability/logger"
	"github.com/authgate/authgate/internal/security/secretbox"
	"github.com/authgate/authgate/internal/security/signer"
	"github.com/authgate/authgate/internal/store"
)

// App owns the long-lived components of a running service.
type App struct {
	cfg    *config.Config
	store  *store.Store
	redis  *cache.Redis // nil when the memory backend is in use
	apiSrv *nethttp.Server
}

// New wires the whole service. Fails fast on anything misconfigured.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	box, err := secretbox.New(cfg.Auth.EncryptionKey)
	if err != nil {
		return nil, err
	}
	sg, err := signer.New(cfg.Auth.TokenSecret, cfg.Auth.Issuer)
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{cfg: cfg}

	var states cache.Cache
	switch cfg.Cache.Kind {
	case "redis":
		r := cache.NewRedis(cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix)
		if err := r.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		app.redis = r
		states = r
	default:
		states = cache.NewMemory(time.Duration(cfg.Cache.Memory.DefaultTTL))
	}

	st, err := store.Open(ctx, cfg.Storage.DSN,
		int32(cfg.Storage.MaxOpenConns), int32(cfg.Storage.MaxIdleConns))
	if err != nil {
		return nil, err
	}
	app.store = st

	oauthSvc := auth.NewOAuthService(auth.OAuthServiceDeps{
		Registry:           registry,
		Box:                box,
		Users:              st.Users(),
		Sessions:           st.Sessions(),
		Tx:                 st,
		ProviderAccessTTL:  time.Duration(cfg.Auth.ProviderAccessTTL),
		ProviderRefreshTTL: time.Duration(cfg.Auth.ProviderRefreshTTL),
	})
	lifecycle := auth.NewLifecycle(auth.LifecycleDeps{
		Registry: registry,
		Box:      box,
		Sessions: st.Sessions(),
	})

	cookies := handlers.CookieConfig{
		Domain: cfg.Auth.Cookie.Domain,
		Secure: cfg.Auth.Cookie.Secure,
	}
	oauthHandlers := handlers.NewOAuth(handlers.OAuthDeps{
		Registry:          registry,
		Signer:            sg,
		Service:           oauthSvc,
		States:            states,
		StateTTL:          time.Duration(cfg.Auth.StateTTL),
		AccessTTL:         time.Duration(cfg.Auth.AccessTTL),
		RefreshTTL:        time.Duration(cfg.Auth.RefreshTTL),
		Cookies:           cookies,
		PostLoginRedirect: cfg.Auth.PostLoginRedirect,
	})
	authHandlers := handlers.NewAuth(handlers.AuthDeps{
		Signer:     sg,
		Lifecycle:  lifecycle,
		AccessTTL:  time.Duration(cfg.Auth.AccessTTL),
		RefreshTTL: time.Duration(cfg.Auth.RefreshTTL),
		Cookies:    cookies,
	})

	router := httpapi.NewRouter(httpapi.RouterDeps{
		Signer:   sg,
		Sessions: st.Sessions(),
		Users:    st.Users(),
		OAuth:    oauthHandlers,
		Auth:     authHandlers,
		Readyz:   handlers.Readyz(st),
	})
	app.apiSrv = httpapi.NewServer(cfg.Server.Addr, router)

	logger.L().Info("application wired",
		logger.String("providers", fmt.Sprint(registry.List())),
		logger.String("cache", cfg.Cache.Kind),
	)
	return app, nil
}

func buildRegistry(cfg *config.Config) (*oauth.Registry, error) {
	registry := oauth.NewRegistry()
	for name, pc := range cfg.Providers {
		oc := oauth.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			Scopes:       pc.Scopes,
		}
		switch name {
		case google.ProviderName:
			registry.Register(name, oc, google.Factory)
		case github.ProviderName:
			registry.Register(name, oc, github.Factory)
		default:
			return nil, fmt.Errorf("unknown provider %q in config", name)
		}
	}
	return registry, nil
}

// APIServer returns the configured API listener.
func (a *App) APIServer() *nethttp.Server { return a.apiSrv }

// Close releases the database pool and the redis client, if any.
func (a *App) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.L().Warn("closing redis failed", logger.Err(err))
		}
	}
}
