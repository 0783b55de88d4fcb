package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/Jeffreasy/KoruFormsService/internal/api/helpers"
	"github.com/getsentry/sentry-go"
)

// PanicRecovery captures panics, logs them with the stack and answers with a
// generic 500 body.
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("panic_recovered",
					"error", rec,
					"path", r.URL.Path,
					"method", r.Method,
					"stack", string(debug.Stack()),
				)

				if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
					hub.Recover(rec)
				}

				helpers.RespondStatus(w, r, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
