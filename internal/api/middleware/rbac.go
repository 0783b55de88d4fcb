package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Jeffreasy/KoruFormsService/internal/api/helpers"
	"github.com/Jeffreasy/KoruFormsService/internal/domain"
)

// roleWeights for hierarchy checks
var roleWeights = map[string]int{
	domain.RoleAdmin:  2,
	domain.RoleEditor: 1,
}

// RequireRole enforces a minimum role. It must run after RequireSession.
func RequireRole(requiredRole string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := GetSession(r.Context())
			if err != nil {
				helpers.RespondStatus(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			if roleWeights[sess.Role] < roleWeights[requiredRole] {
				slog.Warn("rbac_denied", "have", sess.Role, "need", requiredRole, "user_id", sess.UserID)
				helpers.RespondStatus(w, r, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
