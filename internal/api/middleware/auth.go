// Package middleware provides the API's admin authentication, CORS and
// per-client rate limiting.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/logger"
)

type contextKey string

const apiKeyInfoKey contextKey = "api_key_info"

// RequireAdmin rejects requests that do not carry a configured admin key.
func RequireAdmin(validator *apikey.Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := validator.Validate(r.Context(), apikey.FromRequest(r))
			if err != nil {
				msg := "invalid api key"
				if errors.Is(err, apikey.ErrMissingKey) {
					msg = "missing api key"
				}
				logger.FromContext(r.Context()).Warn("admin request rejected",
					"component", "auth", "path", r.URL.Path, "reason", msg)
				writeError(w, http.StatusUnauthorized, msg)
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyInfoKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetKeyInfo returns the admin key validated by RequireAdmin, if any.
func GetKeyInfo(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(apiKeyInfoKey).(*apikey.KeyInfo)
	return info
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": message})
}
