package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/logger"
)

// RateLimit limits each client, identified by its API key when it sends one
// and by remote address otherwise. Health probes and the Telegram webhook
// are exempt; the bot limits conversations itself.
func RateLimit(limiter ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := limiter.Allow(r.Context(), clientKey(r))
			if err != nil {
				logger.FromContext(r.Context()).Warn("rate limiter unavailable", "component", "ratelimit", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func exempt(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/api/v1/telegram/webhook"
}

func clientKey(r *http.Request) string {
	if key := apikey.FromRequest(r); key != "" {
		return "key:" + apikey.HashKey(key)[:16]
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
