package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Jeffreasy/KoruFormsService/internal/auth"
	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTokens struct {
	claims map[string]*auth.Claims
}

func (s stubTokens) GenerateSessionToken(domain.Session) (string, error) { return "", nil }
func (s stubTokens) GetJWKS() (*auth.JWKS, error)                       { return &auth.JWKS{}, nil }
func (s stubTokens) ValidateToken(tok string) (*auth.Claims, error) {
	if c, ok := s.claims[tok]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

func okHandler(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func TestRequireSession(t *testing.T) {
	uid := uuid.New()
	tokens := stubTokens{claims: map[string]*auth.Claims{
		"good": {UserID: uid, Email: "ann@example.com", Role: domain.RoleEditor, Websites: []string{"w1"}},
	}}

	var got domain.Session
	h := RequireSession(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = MustGetSession(r.Context())
	}))

	tests := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"Basic abc", http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
		{"Bearer good", http.StatusOK},
		{"bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/forms", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, tt.status, rr.Code, tt.header)
	}
	assert.Equal(t, uid, got.UserID)
	assert.Equal(t, []string{"w1"}, got.Websites)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(domain.RoleAdmin)(http.HandlerFunc(okHandler))

	run := func(ctx context.Context) int {
		req := httptest.NewRequest(http.MethodPost, "/admin/reconcile", nil).WithContext(ctx)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusUnauthorized, run(context.Background()))
	assert.Equal(t, http.StatusForbidden, run(WithSession(context.Background(), domain.Session{Role: domain.RoleEditor})))
	assert.Equal(t, http.StatusOK, run(WithSession(context.Background(), domain.Session{Role: domain.RoleAdmin})))
}

func TestCORS(t *testing.T) {
	isPublic := func(p string) bool { return p == "/forms/submit" }
	h := CORS([]string{"https://dash.example"}, isPublic)(http.HandlerFunc(okHandler))

	serve := func(method, path, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Origin", origin)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	rr := serve(http.MethodOptions, "/forms/submit", "https://customer.example")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://customer.example", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))

	rr = serve(http.MethodGet, "/forms", "https://evil.example")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(http.MethodGet, "/forms", "https://dash.example")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	rr = serve(http.MethodOptions, "/forms/abc", "https://dash.example")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestIPRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewIPRateLimiter(ctx, 1, 2).Middleware(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/forms/submit", nil)
		req.RemoteAddr = "198.51.100.1:1000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodPost, "/forms/submit", nil)
	req.RemoteAddr = "198.51.100.2:1000"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, "buckets are per address")
}

func TestPanicRecovery(t *testing.T) {
	h := PanicRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "internal server error")
}
