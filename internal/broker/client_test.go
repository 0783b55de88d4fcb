package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", AppID: "app-forms", AppSecret: "s3cret"})
}

func TestLogin_NormalizesWebsiteIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "app-forms", r.Header.Get("X-App-ID"))
		assert.Equal(t, "s3cret", r.Header.Get("X-App-Secret"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ann@example.com", body["username"])

		_, _ = w.Write([]byte(`{
			"user": {"id": "u1", "email": "ann@example.com", "name": "Ann", "role": "editor"},
			"access_token": "ext-token",
			"websites": ["w1", {"id": "w2"}, {"_id": "w3"}]
		}`))
	})

	res, err := c.Login(context.Background(), "ann@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "ext-token", res.AccessToken)
	assert.Equal(t, "u1", res.User.ID)
	assert.Equal(t, IDList{"w1", "w2", "w3"}, res.Websites)
}

func TestLogin_UpstreamErrorCarriesStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message": "wrong password"}`))
	})

	_, err := c.Login(context.Background(), "ann@example.com", "bad")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "wrong password", be.Message)
}

func TestGetWebsite_CredentialSelection(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/websites/w1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "w1", "apps": [{"id": "app-forms"}, "other"]}`))
	})

	site, err := c.GetWebsite(context.Background(), "w1", "user-token")
	require.NoError(t, err)
	assert.Equal(t, "Bearer user-token", gotAuth)
	assert.True(t, site.Installed("app-forms"))
	assert.False(t, site.Installed("missing"))

	_, err = c.GetWebsite(context.Background(), "w1", "")
	require.NoError(t, err)
	assert.Empty(t, gotAuth, "app-credential calls send no bearer")
}

func TestGetWebsite_EscapesWebsiteID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/websites/..%2Fadmin%3Fx=1", r.URL.EscapedPath())
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"id": "x"}`))
	})

	_, err := c.GetWebsite(context.Background(), "../admin?x=1", "")
	require.NoError(t, err)
}

func TestVerifyToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/verify-token", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id": "u1", "email": "a@b.c", "websites": [{"id": "w9"}]}`))
	})

	v, err := c.VerifyToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, IDList{"w9"}, v.Websites)
}

func TestStatusOf_ConnectionFailure(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := c.GetWebsite(context.Background(), "w1", "")
	require.Error(t, err)
	assert.Equal(t, 0, StatusOf(err))
}
