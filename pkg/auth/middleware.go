package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// WorkspaceHeader names the workspace a request targets.
const WorkspaceHeader = "X-Blaxel-Workspace"

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/metrics"}

// Middleware creates HTTP middleware from a Chain and an optional
// RateLimiter. It skips the bypass list, authenticates, enforces the
// identity's workspace and stores the identity in the request context.
func Middleware(chain *Chain, limiter RateLimiter, bypassEndpoints []string, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)
			if result.Decision != Yes || result.Identity == nil {
				log.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				status := http.StatusUnauthorized
				if errors.Is(result.Err, ErrForbidden) {
					status = http.StatusForbidden
				}
				writeError(w, status, "invalid or missing API key")
				return
			}
			id := result.Identity
			if id.Subject == "" {
				log.Error("authenticator returned identity with empty subject")
				writeError(w, http.StatusInternalServerError, "internal authentication error")
				return
			}

			if ws := r.Header.Get(WorkspaceHeader); id.Workspace != "" && ws != "" && ws != id.Workspace {
				log.Warn("workspace denied", "subject", id.Subject, "workspace", ws)
				writeError(w, http.StatusForbidden, "workspace "+ws+" is not accessible with this key")
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					log.Warn("rate limit exceeded", "subject", id.Subject)
					w.Header().Set("Retry-After", "1")
					writeError(w, http.StatusTooManyRequests, err.Error())
					return
				}
			}

			log.Debug("authentication succeeded", "subject", id.Subject, "path", r.URL.Path)
			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), id)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   http.StatusText(status),
		"message": msg,
	})
}
