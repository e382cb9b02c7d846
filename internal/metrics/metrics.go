// Package metrics exposes the service's prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CallbackTotal counts completed OAuth callbacks by provider and outcome.
	CallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "oauth_callback_total",
		Help:      "OAuth callback results by provider and outcome.",
	}, []string{"provider", "outcome"})

	// RefreshTotal counts provider token refreshes by provider and outcome.
	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "token_refresh_total",
		Help:      "Provider token refresh results by provider and outcome.",
	}, []string{"provider", "outcome"})

	// HTTPRequests counts API requests by route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Name:      "http_requests_total",
		Help:      "API requests by method, route and status.",
	}, []string{"method", "route", "status"})
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler { return promhttp.Handler() }
