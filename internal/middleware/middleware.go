package middleware

import "net/http"

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain wraps h with each middleware in turn, so the last one listed runs
// first on an incoming request.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for _, m := range mws {
		if m == nil {
			continue
		}
		h = m(h)
	}
	return h
}
