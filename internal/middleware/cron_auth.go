package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/titlepulse/titlepulse-api/internal/pkg/response"
)

// CronAuth guards the scheduler trigger endpoint with a shared bearer secret.
func CronAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				log.Error().Msg("CRON_SECRET not configured, rejecting trigger request")
				response.Unauthorized(w, "trigger disabled")
				return
			}

			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				log.Warn().Str("ip", getClientIP(r)).Msg("Unauthorized cron trigger attempt")
				response.Unauthorized(w, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
