// Package middlewares holds the HTTP decorators applied around the router.
package middlewares

import "net/http"

// Middleware decorates an http.Handler. The signature matches what
// chi's Use expects, so these plug straight into the router.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares left to right: Chain(h, A, B) runs A -> B -> h.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
