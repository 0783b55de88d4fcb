package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Jeffreasy/KoruFormsService/internal/api/helpers"
	"github.com/Jeffreasy/KoruFormsService/internal/api/middleware"
	"github.com/Jeffreasy/KoruFormsService/internal/auth"
	"github.com/google/uuid"
)

// AuthHandler serves login, the session view and the signing keys.
type AuthHandler struct {
	gateway LoginGateway
	tokens  auth.TokenProvider
}

func NewAuthHandler(gateway LoginGateway, tokens auth.TokenProvider) *AuthHandler {
	return &AuthHandler{gateway: gateway, tokens: tokens}
}

// LoginRequest defines the expected JSON body for login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		helpers.RespondStatus(w, r, http.StatusBadRequest, "username and password required")
		return
	}

	res, err := h.gateway.Login(r.Context(), auth.Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		slog.Warn("login_failed", "mode", h.gateway.Mode(), "ip", helpers.ClientIP(r), "error", err)
		helpers.RespondError(w, r, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, res)
}

// MeResponse is the session as the dashboard sees it.
type MeResponse struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	Websites []string  `json:"websites"`
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := middleware.MustGetSession(r.Context())
	websites := sess.Websites
	if websites == nil {
		websites = []string{}
	}
	helpers.RespondJSON(w, http.StatusOK, MeResponse{
		ID:       sess.UserID,
		Email:    sess.Email,
		Role:     sess.Role,
		Websites: websites,
	})
}

// JWKS publishes the session verification keys.
func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	jwks, err := h.tokens.GetJWKS()
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	helpers.RespondJSON(w, http.StatusOK, jwks)
}
