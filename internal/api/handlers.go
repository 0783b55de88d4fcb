package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Jeffreasy/KoruFormsService/internal/api/helpers"
	"github.com/Jeffreasy/KoruFormsService/internal/auth"
	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/Jeffreasy/KoruFormsService/internal/forms"
	"github.com/Jeffreasy/KoruFormsService/internal/reconcile"
	"github.com/Jeffreasy/KoruFormsService/internal/submissions"
)

// FormService is the form engine as seen by the HTTP layer.
type FormService interface {
	Create(ctx context.Context, in forms.CreateInput, sess domain.Session) (*domain.Form, error)
	List(ctx context.Context, sess domain.Session) ([]domain.Form, error)
	Get(ctx context.Context, formID string, sess domain.Session) (*domain.Form, error)
	Update(ctx context.Context, formID string, patch domain.FormPatch, sess domain.Session) (*domain.Form, error)
	Delete(ctx context.Context, formID string, sess domain.Session) error
	Activate(ctx context.Context, formID, websiteID string, sess domain.Session) (*domain.Form, error)
	GetPublicConfig(ctx context.Context, formID, websiteID string) (*domain.PublicConfig, error)
	ValidatePermissions(ctx context.Context, formID string, sess domain.Session) (*domain.PermissionCheck, error)
}

// SubmissionService accepts widget posts and lists stored submissions.
type SubmissionService interface {
	Process(ctx context.Context, in submissions.Payload) (*submissions.Outcome, error)
	List(ctx context.Context, form *domain.Form, limit, offset int) ([]domain.Submission, error)
}

// LoginGateway issues dashboard sessions.
type LoginGateway interface {
	Login(ctx context.Context, creds auth.Credentials) (*auth.LoginResult, error)
	Mode() string
}

// ReconcileTrigger runs one reconciliation on demand.
type ReconcileTrigger interface {
	Trigger(ctx context.Context) (reconcile.Summary, bool, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// decodeBody decodes a JSON body and answers 400 on failure. It logs the
// sanitized body so credentials never reach the logs.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := helpers.DecodeJSON(w, r, v); err != nil {
		var de *helpers.DecodeError
		attrs := []any{"path", r.URL.Path, "error", err}
		if errors.As(err, &de) && de.Body != nil {
			attrs = append(attrs, "body", de.Body)
		}
		slog.Warn("request_decode_failed", attrs...)
		helpers.RespondStatus(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
