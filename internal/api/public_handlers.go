package api

import (
	"net/http"

	"github.com/Jeffreasy/KoruFormsService/internal/api/helpers"
	"github.com/Jeffreasy/KoruFormsService/internal/submissions"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PublicHandler serves the embeddable widget. No authentication.
type PublicHandler struct {
	forms       FormService
	submissions SubmissionService
}

func NewPublicHandler(forms FormService, submissions SubmissionService) *PublicHandler {
	return &PublicHandler{forms: forms, submissions: submissions}
}

// Config returns the render configuration for a form on one website.
func (h *PublicHandler) Config(w http.ResponseWriter, r *http.Request) {
	websiteID := r.URL.Query().Get("websiteId")
	if websiteID == "" {
		websiteID = r.URL.Query().Get("website_id")
	}
	if websiteID == "" {
		helpers.RespondStatus(w, r, http.StatusBadRequest, "websiteId is required")
		return
	}

	cfg, err := h.forms.GetPublicConfig(r.Context(), chi.URLParam(r, "id"), websiteID)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	helpers.RespondJSON(w, http.StatusOK, cfg)
}

// SubmitResponse is identical for accepted and spam submissions.
type SubmitResponse struct {
	Message      string    `json:"message"`
	SubmissionID uuid.UUID `json:"submission_id"`
}

const submitMessage = "Form submitted successfully"

func (h *PublicHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var in submissions.Payload
	if !decodeBody(w, r, &in) {
		return
	}

	out, err := h.submissions.Process(r.Context(), in)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}

	id := out.Submission.ID
	if out.Kind == submissions.OutcomeSpam {
		// Bots get an id that matches no record.
		id = uuid.New()
	}
	helpers.RespondJSON(w, http.StatusOK, SubmitResponse{Message: submitMessage, SubmissionID: id})
}
