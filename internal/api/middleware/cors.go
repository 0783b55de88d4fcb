package middleware

import (
	"log/slog"
	"net/http"
	"slices"
)

const (
	dashboardMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	dashboardHeaders = "Content-Type, Authorization, X-Requested-With"
)

// CORS applies one of two policies per request. Paths for which isPublic
// returns true are embedded on arbitrary customer websites, carry no
// credentials and get the origin reflected. Every other path only admits
// the configured dashboard origins.
//
// It runs before routing so preflight requests are answered for every route.
func CORS(dashboardOrigins []string, isPublic func(path string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")

			if isPublic(r.URL.Path) {
				h.Set("Access-Control-Allow-Origin", origin)
				if r.Method == http.MethodOptions {
					h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					h.Set("Access-Control-Allow-Headers", "Content-Type")
					h.Set("Access-Control-Max-Age", "600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if !slices.Contains(dashboardOrigins, origin) {
				slog.Warn("cors_origin_rejected", "origin", origin, "path", r.URL.Path)
				http.Error(w, "CORS Policy Violation", http.StatusForbidden)
				return
			}

			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", dashboardMethods)
				h.Set("Access-Control-Allow-Headers", dashboardHeaders)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
