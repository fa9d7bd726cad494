package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/castellanhq/castellan/pkg/http"
	"github.com/go-chi/httprate"
)

// LoginRateLimit throttles login attempts per client IP. Lockout tracking
// handles per-account abuse; this guards against raw request floods.
func LoginRateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests, try again later")
		}),
	)
}
