package helpers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/getsentry/sentry-go"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
}

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// RespondStatus writes an error body with an explicit status and message.
func RespondStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondJSON(w, status, ErrorBody{
		StatusCode: status,
		Message:    message,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Path:       r.URL.Path,
	})
}

// RespondError maps err to a status code. Internal errors are logged and
// reported, and the client only sees a generic message.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	if kind == domain.KindInternal {
		slog.ErrorContext(r.Context(), "request_failed", "path", r.URL.Path, "method", r.Method, "error", err)
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.CaptureException(err)
		}
	}
	RespondStatus(w, r, status, domain.MessageOf(err))
}

func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindBadRequest:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
