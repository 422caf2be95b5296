package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/muandane/glimpse/internal/config"
)

type AuthConfig struct {
	// Token is the expected bearer token. Empty or "none" disables checking.
	Token string
	// ExcludedPaths are exact paths served without a token.
	ExcludedPaths []string
}

type errorBody struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, code int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorBody{Error: kind, Code: code, Message: message})
}

// WithAuth enforces "Authorization: Bearer <token>". A missing or malformed
// header is 401, a wrong token 403.
func WithAuth(cfg AuthConfig, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if cfg.Token == "" || cfg.Token == config.NoAuthToken {
			logger.Warn("authentication disabled, API_KEY is not set")
			return next
		}
		expected := []byte(cfg.Token)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(cfg.ExcludedPaths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, "Unauthorized", "Authorization header missing")
				return
			}
			scheme, token, ok := strings.Cut(header, " ")
			token = strings.TrimSpace(token)
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid authorization header format")
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
				logger.Warn("rejected api key",
					"request_id", RequestID(r.Context()),
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				writeError(w, http.StatusForbidden, "Forbidden", "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
