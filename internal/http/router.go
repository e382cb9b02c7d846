// Package http wires the public API surface onto a chi router.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/authgate/authgate/internal/http/handlers"
	"github.com/authgate/authgate/internal/http/middlewares"
	"github.com/authgate/authgate/internal/security/signer"
)

// RouterDeps carries everything the API routes need.
type RouterDeps struct {
	Signer   *signer.Signer
	Sessions middlewares.SessionSource
	Users    middlewares.UserSource

	OAuth  *handlers.OAuth
	Auth   *handlers.Auth
	Readyz http.HandlerFunc
}

// NewRouter builds the API handler tree. Session resolution runs on every
// /v1 route and never rejects; RequireSession guards the endpoints that
// need an identity.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middlewares.WithRequestID())
	r.Use(middlewares.WithRecover())
	r.Use(middlewares.WithLogging())

	r.Get("/healthz", handlers.Healthz)
	r.Get("/readyz", deps.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middlewares.WithSession(deps.Signer, deps.Sessions, deps.Users))

		r.Route("/oauth", func(r chi.Router) {
			r.Get("/providers", deps.OAuth.Providers)
			r.Get("/{provider}/start", deps.OAuth.Start)
			r.Get("/{provider}/callback", deps.OAuth.Callback)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/refresh", deps.Auth.Refresh)
			r.With(middlewares.RequireSession()).Post("/logout", deps.Auth.Logout)
			r.With(middlewares.RequireSession()).Get("/me", deps.Auth.Me)
		})
	})

	return r
}
