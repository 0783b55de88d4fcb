package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Jeffreasy/KoruFormsService/internal/api/helpers"
	"github.com/Jeffreasy/KoruFormsService/internal/auth"
)

// RequireSession validates the bearer session token and stores the session
// in the request context.
func RequireSession(provider auth.TokenProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				helpers.RespondStatus(w, r, http.StatusUnauthorized, "authorization header required")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				helpers.RespondStatus(w, r, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			claims, err := provider.ValidateToken(token)
			if err != nil {
				slog.Warn("invalid_session_token", "error", err, "ip", helpers.ClientIP(r))
				helpers.RespondStatus(w, r, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			sess := claims.Session()
			SetSentryUser(r.Context(), sess.UserID.String(), sess.Email, helpers.ClientIP(r))

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}
