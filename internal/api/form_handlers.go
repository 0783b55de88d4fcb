package api

import (
	"net/http"
	"strconv"

	"github.com/Jeffreasy/KoruFormsService/internal/api/helpers"
	"github.com/Jeffreasy/KoruFormsService/internal/api/middleware"
	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/Jeffreasy/KoruFormsService/internal/forms"
	"github.com/go-chi/chi/v5"
)

// FormHandler serves the dashboard form endpoints. Every call is scoped to
// the caller's session.
type FormHandler struct {
	forms       FormService
	submissions SubmissionService
}

func NewFormHandler(forms FormService, submissions SubmissionService) *FormHandler {
	return &FormHandler{forms: forms, submissions: submissions}
}

func (h *FormHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in forms.CreateInput
	if !decodeBody(w, r, &in) {
		return
	}
	f, err := h.forms.Create(r.Context(), in, middleware.MustGetSession(r.Context()))
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusCreated, f)
}

func (h *FormHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.forms.List(r.Context(), middleware.MustGetSession(r.Context()))
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Form{}
	}
	helpers.RespondJSON(w, http.StatusOK, list)
}

func (h *FormHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, err := h.forms.Get(r.Context(), chi.URLParam(r, "id"), middleware.MustGetSession(r.Context()))
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, f)
}

func (h *FormHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch domain.FormPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	f, err := h.forms.Update(r.Context(), chi.URLParam(r, "id"), patch, middleware.MustGetSession(r.Context()))
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, f)
}

func (h *FormHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.forms.Delete(r.Context(), chi.URLParam(r, "id"), middleware.MustGetSession(r.Context())); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type activateRequest struct {
	WebsiteID string `json:"websiteId"`
}

func (h *FormHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.WebsiteID == "" {
		helpers.RespondStatus(w, r, http.StatusBadRequest, "websiteId is required")
		return
	}
	f, err := h.forms.Activate(r.Context(), chi.URLParam(r, "id"), req.WebsiteID, middleware.MustGetSession(r.Context()))
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, f)
}

func (h *FormHandler) ValidatePermissions(w http.ResponseWriter, r *http.Request) {
	res, err := h.forms.ValidatePermissions(r.Context(), chi.URLParam(r, "id"), middleware.MustGetSession(r.Context()))
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, res)
}

// Submissions lists a form's submissions, newest first. Query parameters
// limit (max 100) and offset page through them.
func (h *FormHandler) Submissions(w http.ResponseWriter, r *http.Request) {
	sess := middleware.MustGetSession(r.Context())
	f, err := h.forms.Get(r.Context(), chi.URLParam(r, "id"), sess)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	subs, err := h.submissions.List(r.Context(), f, limit, offset)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, subs)
}
