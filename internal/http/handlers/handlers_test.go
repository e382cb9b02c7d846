package handlers_test

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/cache"
	"github.com/authgate/authgate/internal/http/handlers"
	"github.com/authgate/authgate/internal/http/middlewares"
	"github.com/authgate/authgate/internal/oauth"
	"github.com/authgate/authgate/internal/security/signer"
	"github.com/authgate/authgate/internal/store"
)

const (
	testSecret = "handler-test-secret"
	testIssuer = "authgate-test"
)

// fakeProvider is just enough provider for the start endpoint.
type fakeProvider struct{ name string }

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthorizationURL(_ context.Context, state string) (string, error) {
	return "https://provider.test/authorize?state=" + state, nil
}

func (p *fakeProvider) Exchange(context.Context, string) (*oauth.TokenSet, error) {
	panic("handlers never call Exchange directly")
}

func (p *fakeProvider) Refresh(context.Context, string) (*oauth.TokenSet, error) {
	panic("handlers never call Refresh directly")
}

func (p *fakeProvider) UserInfo(context.Context, string) (*oauth.UserProfile, error) {
	panic("handlers never call UserInfo directly")
}

func (p *fakeProvider) DefaultScopes() []string { return []string{"email"} }

func testRegistry(names ...string) *oauth.Registry {
	r := oauth.NewRegistry()
	for _, n := range names {
		name := n
		r.Register(name, oauth.Config{}, func(oauth.Config) (oauth.Provider, error) {
			return &fakeProvider{name: name}, nil
		})
	}
	return r
}

// fakeCallbackService scripts the orchestrator.
type fakeCallbackService struct {
	mu     sync.Mutex
	calls  int
	result *auth.LoginResult
	err    error
}

func (f *fakeCallbackService) HandleCallback(_ context.Context, provider, code string) (*auth.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeLifecycle scripts refresh and revoke.
type fakeLifecycle struct {
	refreshResult *auth.RefreshResult
	refreshErr    error
	revoked       []string
}

func (f *fakeLifecycle) GetValidAccessToken(_ context.Context, sessionID string) (*auth.RefreshResult, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshResult, nil
}

func (f *fakeLifecycle) Revoke(_ context.Context, sessionID string) error {
	f.revoked = append(f.revoked, sessionID)
	return nil
}

// fakeSessionSource / fakeUserSource feed the session middleware.
type fakeSessionSource struct {
	sessions map[string]*store.Session
	touched  []string
}

func (f *fakeSessionSource) GetByID(_ context.Context, id string) (*store.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessionSource) Touch(_ context.Context, id string) error {
	f.touched = append(f.touched, id)
	return nil
}

type fakeUserSource struct {
	users map[string]*store.User
}

func (f *fakeUserSource) GetByID(_ context.Context, id string) (*store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

// fixture assembles a router the way the real one is wired.
type fixture struct {
	router    http.Handler
	signer    *signer.Signer
	service   *fakeCallbackService
	lifecycle *fakeLifecycle
	sessions  *fakeSessionSource
	users     *fakeUserSource
	states    cache.Cache
}

func newFixture() *fixture {
	sg, err := signer.New(testSecret, testIssuer)
	if err != nil {
		panic(err)
	}
	f := &fixture{
		signer:    sg,
		service:   &fakeCallbackService{},
		lifecycle: &fakeLifecycle{},
		sessions:  &fakeSessionSource{sessions: map[string]*store.Session{}},
		users:     &fakeUserSource{users: map[string]*store.User{}},
		states:    cache.NewMemory(time.Minute),
	}

	oauthH := handlers.NewOAuth(handlers.OAuthDeps{
		Registry:          testRegistry("google", "github"),
		Signer:            sg,
		Service:           f.service,
		States:            f.states,
		StateTTL:          10 * time.Minute,
		AccessTTL:         time.Hour,
		RefreshTTL:        90 * 24 * time.Hour,
		Cookies:           handlers.CookieConfig{Secure: true},
		PostLoginRedirect: "https://app.example/dashboard",
	})
	authH := handlers.NewAuth(handlers.AuthDeps{
		Signer:     sg,
		Lifecycle:  f.lifecycle,
		AccessTTL:  time.Hour,
		RefreshTTL: 90 * 24 * time.Hour,
		Cookies:    handlers.CookieConfig{Secure: true},
	})

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Use(middlewares.WithSession(sg, f.sessions, f.users))
		r.Route("/oauth", func(r chi.Router) {
			r.Get("/providers", oauthH.Providers)
			r.Get("/{provider}/start", oauthH.Start)
			r.Get("/{provider}/callback", oauthH.Callback)
		})
		r.Route("/auth", func(r chi.Router) {
			r.Post("/refresh", authH.Refresh)
			r.With(middlewares.RequireSession()).Post("/logout", authH.Logout)
			r.With(middlewares.RequireSession()).Get("/me", authH.Me)
		})
	})
	f.router = r
	return f
}

// seedIdentity stores an active user+session pair and returns an access
// credential resolving to it.
func (f *fixture) seedIdentity() (accessToken string) {
	now := time.Now()
	user := &store.User{ID: "user-001", Email: "ada@example.com", FirstName: "Ada"}
	sess := &store.Session{
		ID:        "sess-001",
		UserID:    user.ID,
		Status:    store.SessionActive,
		Provider:  "google",
		ExpiresAt: now.Add(24 * time.Hour),
		CreatedAt: now,
	}
	f.users.users[user.ID] = user
	f.sessions.sessions[sess.ID] = sess

	tok, err := f.signer.Sign(signer.PurposeAccess,
		map[string]any{"sub": user.ID, "sid": sess.ID}, time.Hour)
	if err != nil {
		panic(err)
	}
	return tok
}

func (f *fixture) signedState(provider, mode string) string {
	st, err := f.signer.Sign(signer.PurposeState,
		map[string]any{"provider": provider, "mode": mode}, 10*time.Minute)
	if err != nil {
		panic(err)
	}
	return st
}
