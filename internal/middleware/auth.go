package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Swrve/swrve-smarttv-sdk/internal/config"
	"go.uber.org/zap"
)

const (
	// AuthHeaderName carries the diagnostics token.
	AuthHeaderName = "X-Debug-Token"

	// AuthQueryParam is the fallback when a header can't be set, e.g. from a TV browser.
	AuthQueryParam = "token"
)

// AuthMiddleware rejects diagnostics requests that lack the configured token.
type AuthMiddleware struct {
	cfg    config.AuthConfig
	logger *zap.Logger
}

func NewAuthMiddleware(cfg config.AuthConfig, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{cfg: cfg, logger: logger}
}

func (a *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || a.shouldSkip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(AuthHeaderName)
		if token == "" {
			token = r.URL.Query().Get(AuthQueryParam)
		}
		if token == "" {
			a.unauthorized(w, "missing token")
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(a.cfg.Token)) != 1 {
			a.logger.Warn("invalid debug token",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			a.unauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *AuthMiddleware) shouldSkip(path string) bool {
	for _, skip := range a.cfg.SkipPaths {
		if strings.HasPrefix(path, skip) {
			return true
		}
	}
	return false
}

func (a *AuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Token")
	writeError(w, http.StatusUnauthorized, message)
}
