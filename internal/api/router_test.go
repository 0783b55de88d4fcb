package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Jeffreasy/KoruFormsService/internal/api/helpers"
	"github.com/Jeffreasy/KoruFormsService/internal/auth"
	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/Jeffreasy/KoruFormsService/internal/forms"
	"github.com/Jeffreasy/KoruFormsService/internal/reconcile"
	"github.com/Jeffreasy/KoruFormsService/internal/submissions"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTokens struct{}

func (stubTokens) GenerateSessionToken(domain.Session) (string, error) { return "tok", nil }
func (stubTokens) GetJWKS() (*auth.JWKS, error) {
	return &auth.JWKS{Keys: []auth.JWK{{Kty: "RSA", Kid: "k1", Alg: "RS256"}}}, nil
}
func (stubTokens) ValidateToken(tok string) (*auth.Claims, error) {
	switch tok {
	case "editor":
		return &auth.Claims{UserID: uuid.New(), Email: "ed@example.com", Role: domain.RoleEditor, Websites: []string{"w1"}}, nil
	case "admin":
		return &auth.Claims{UserID: uuid.New(), Email: "root@example.com", Role: domain.RoleAdmin}, nil
	}
	return nil, errors.New("invalid")
}

type fakeForms struct {
	lastSess   domain.Session
	lastPatch  domain.FormPatch
	activateTo string
}

func (f *fakeForms) form(id string) *domain.Form {
	site := "w1"
	return &domain.Form{ID: uuid.New(), FormID: id, WebsiteID: &site, Status: domain.StatusActive, IsActive: true}
}

func (f *fakeForms) Create(_ context.Context, in forms.CreateInput, s domain.Session) (*domain.Form, error) {
	f.lastSess = s
	if in.FormID == "taken" {
		return nil, domain.Conflict("form_id already exists")
	}
	return f.form(in.FormID), nil
}
func (f *fakeForms) List(_ context.Context, s domain.Session) ([]domain.Form, error) {
	f.lastSess = s
	return nil, nil
}
func (f *fakeForms) Get(_ context.Context, id string, s domain.Session) (*domain.Form, error) {
	if id == "foreign" {
		return nil, domain.NotFound("form not found")
	}
	return f.form(id), nil
}
func (f *fakeForms) Update(_ context.Context, id string, p domain.FormPatch, _ domain.Session) (*domain.Form, error) {
	f.lastPatch = p
	return f.form(id), nil
}
func (f *fakeForms) Delete(_ context.Context, id string, _ domain.Session) error {
	if id == "foreign" {
		return domain.NotFound("form not found")
	}
	return nil
}
func (f *fakeForms) Activate(_ context.Context, id, site string, _ domain.Session) (*domain.Form, error) {
	f.activateTo = site
	return f.form(id), nil
}
func (f *fakeForms) GetPublicConfig(_ context.Context, id, site string) (*domain.PublicConfig, error) {
	if site != "w1" {
		return nil, domain.Forbidden("site not authorized for this form")
	}
	return &domain.PublicConfig{FormID: id}, nil
}
func (f *fakeForms) ValidatePermissions(_ context.Context, _ string, _ domain.Session) (*domain.PermissionCheck, error) {
	return &domain.PermissionCheck{Valid: true}, nil
}

type fakeSubmissions struct {
	spam     bool
	storedID uuid.UUID
	limit    int
}

func (f *fakeSubmissions) Process(_ context.Context, in submissions.Payload) (*submissions.Outcome, error) {
	if in.FormID == "missing" {
		return nil, domain.NotFound("form not found")
	}
	f.storedID = uuid.New()
	kind := submissions.OutcomeAccepted
	if f.spam {
		kind = submissions.OutcomeSpam
	}
	return &submissions.Outcome{Kind: kind, Submission: &domain.Submission{ID: f.storedID}}, nil
}
func (f *fakeSubmissions) List(_ context.Context, _ *domain.Form, limit, _ int) ([]domain.Submission, error) {
	f.limit = limit
	return []domain.Submission{}, nil
}

type fakeGateway struct{}

func (fakeGateway) Mode() string { return "mock" }
func (fakeGateway) Login(_ context.Context, c auth.Credentials) (*auth.LoginResult, error) {
	if c.Password != "pw" {
		return nil, domain.Unauthorized("invalid credentials")
	}
	return &auth.LoginResult{AccessToken: "tok", User: &domain.User{Email: c.Username}, Websites: []string{"w1"}}, nil
}

type fakeTrigger struct{ busy bool }

func (f fakeTrigger) Trigger(context.Context) (reconcile.Summary, bool, error) {
	if f.busy {
		return reconcile.Summary{}, false, nil
	}
	return reconcile.Summary{SitesProcessed: 3}, true, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T) (*Server, *fakeForms, *fakeSubmissions) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ff, fs := &fakeForms{}, &fakeSubmissions{}
	s := NewServer(ctx, Deps{
		Forms:            ff,
		Submissions:      fs,
		Gateway:          fakeGateway{},
		Tokens:           stubTokens{},
		Reconciler:       fakeTrigger{},
		Pool:             fakePinger{},
		RateLimitRPS:     100,
		RateLimitBurst:   100,
		DashboardOrigins: []string{"https://dash.example"},
	})
	return s, ff, fs
}

func do(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.Router.ServeHTTP(rr, req)
	return rr
}

func TestLogin(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := do(s, http.MethodPost, "/auth/login", "", `{"username":"ann@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var res auth.LoginResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, "tok", res.AccessToken)
	assert.Equal(t, []string{"w1"}, res.Websites)

	rr = do(s, http.MethodPost, "/auth/login", "", `{"username":"ann@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(s, http.MethodPost, "/auth/login", "", `{"email":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDashboardRequiresSession(t *testing.T) {
	s, _, _ := newTestServer(t)
	for _, path := range []string{"/forms", "/forms/abc", "/auth/me"} {
		rr := do(s, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestFormsCRUD(t *testing.T) {
	s, ff, _ := newTestServer(t)

	rr := do(s, http.MethodPost, "/forms", "editor", `{"form_id":"contact","name":"Contact"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, []string{"w1"}, ff.lastSess.Websites)

	rr = do(s, http.MethodPost, "/forms", "editor", `{"form_id":"taken","name":"Dup"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(s, http.MethodGet, "/forms", "editor", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = do(s, http.MethodGet, "/forms/foreign", "editor", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	var body helpers.ErrorBody
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "/forms/foreign", body.Path)

	rr = do(s, http.MethodPatch, "/forms/contact", "editor", `{"name":"Renamed"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, ff.lastPatch.Name)
	assert.Equal(t, "Renamed", *ff.lastPatch.Name)

	rr = do(s, http.MethodPatch, "/forms/contact", "editor", `{"is_active":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "the global flag is not owner-editable")

	rr = do(s, http.MethodPatch, "/forms/contact/activate", "editor", `{"websiteId":"w1"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "w1", ff.activateTo)

	rr = do(s, http.MethodGet, "/forms/contact/validate-permissions", "editor", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(s, http.MethodDelete, "/forms/contact", "editor", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestSubmissionsList(t *testing.T) {
	s, _, fs := newTestServer(t)

	rr := do(s, http.MethodGet, "/forms/contact/submissions?limit=20", "editor", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 20, fs.limit)

	rr = do(s, http.MethodGet, "/forms/foreign/submissions", "editor", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPublicConfig(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := do(s, http.MethodGet, "/forms/config/contact?websiteId=w1", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(s, http.MethodGet, "/forms/config/contact?websiteId=w2", "", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(s, http.MethodGet, "/forms/config/contact", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSubmit_SpamLooksLikeSuccess(t *testing.T) {
	s, _, fs := newTestServer(t)
	body := `{"form_id":"contact","website_id":"w1","data":{"email":"a@b.c"},"metadata":{}}`

	rr := do(s, http.MethodPost, "/forms/submit", "", body)
	require.Equal(t, http.StatusOK, rr.Code)
	var ok SubmitResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&ok))
	assert.Equal(t, fs.storedID, ok.SubmissionID)

	fs.spam = true
	rr = do(s, http.MethodPost, "/forms/submit", "", body)
	require.Equal(t, http.StatusOK, rr.Code)
	var spam SubmitResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&spam))
	assert.Equal(t, ok.Message, spam.Message)
	assert.NotEqual(t, fs.storedID, spam.SubmissionID, "spam must not reveal the stored id")

	rr = do(s, http.MethodPost, "/forms/submit", "", `{"form_id":"missing","data":{"a":"b"}}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdminReconcile(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := do(s, http.MethodPost, "/admin/reconcile", "editor", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(s, http.MethodPost, "/admin/reconcile", "admin", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var sum reconcile.Summary
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&sum))
	assert.Equal(t, 3, sum.SitesProcessed)
}

func TestAdminReconcile_Busy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewServer(ctx, Deps{Forms: &fakeForms{}, Submissions: &fakeSubmissions{}, Gateway: fakeGateway{},
		Tokens: stubTokens{}, Reconciler: fakeTrigger{busy: true}})

	rr := do(s, http.MethodPost, "/admin/reconcile", "admin", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := do(s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	s.Pool = fakePinger{err: errors.New("down")}
	rr = do(s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestJWKSAndMetrics(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := do(s, http.MethodGet, "/.well-known/jwks.json", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"kid":"k1"`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	guarded := NewServer(ctx, Deps{Tokens: stubTokens{}, MetricsToken: "scrape"})
	assert.Equal(t, http.StatusUnauthorized, do(guarded, http.MethodGet, "/metrics", "", "").Code)
	assert.Equal(t, http.StatusOK, do(guarded, http.MethodGet, "/metrics", "scrape", "").Code)
}
