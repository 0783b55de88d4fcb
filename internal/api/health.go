package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Jeffreasy/KoruFormsService/internal/api/helpers"
)

// HealthHandler validates both API liveness and database connectivity.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Pool == nil {
			helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Pool.Ping(ctx); err != nil {
			// Logged in full, generic to the client.
			s.Logger.Error("health_check_failed", "error", err, "detail", "database_unreachable")
			helpers.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "service temporarily unavailable",
			})
			return
		}

		helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
