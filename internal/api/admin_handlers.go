package api

import (
	"log/slog"
	"net/http"

	"github.com/Jeffreasy/KoruFormsService/internal/api/helpers"
	"github.com/Jeffreasy/KoruFormsService/internal/api/middleware"
	"github.com/Jeffreasy/KoruFormsService/internal/domain"
)

// AdminHandler serves operator endpoints (admin role only).
type AdminHandler struct {
	reconciler ReconcileTrigger
}

func NewAdminHandler(reconciler ReconcileTrigger) *AdminHandler {
	return &AdminHandler{reconciler: reconciler}
}

// Reconcile runs website reconciliation now and returns its summary.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if h.reconciler == nil {
		helpers.RespondError(w, r, domain.BadRequest("reconciliation needs identity broker credentials"))
		return
	}
	sess := middleware.MustGetSession(r.Context())
	slog.Info("reconcile_triggered", "user_id", sess.UserID)

	sum, ran, err := h.reconciler.Trigger(r.Context())
	if err != nil {
		helpers.RespondError(w, r, domain.Internal("reconciliation failed", err))
		return
	}
	if !ran {
		helpers.RespondError(w, r, domain.Conflict("reconciliation already running"))
		return
	}
	helpers.RespondJSON(w, http.StatusOK, sum)
}
