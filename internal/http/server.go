package http

import (
	"net/http"
	"time"
)

// NewServer applies the service's standard timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Provider round trips happen inside requests; the write timeout
		// must outlive the adapter's HTTP client timeout.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
