package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", c.App.Port)
	assert.Equal(t, 24*time.Hour, c.Reconcile.Interval)
	assert.Equal(t, "honeypot", c.Submissions.HoneypotField)
	assert.Equal(t, 10*time.Second, c.Mail.AttemptTimeout)
	assert.False(t, c.BrokerConfigured())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  port: "9000"
broker:
  base_url: https://id.example.com
  app_id: forms
  app_secret: s3cret
reconcile:
  interval: 6h
  concurrency: 3
cors:
  dashboard_origins: ["https://dash.example.com"]
`), 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("RECONCILE_CONCURRENCY", "5")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9100", c.App.Port, "env wins over file")
	assert.Equal(t, 6*time.Hour, c.Reconcile.Interval)
	assert.Equal(t, 5, c.Reconcile.Concurrency)
	assert.True(t, c.BrokerConfigured())
	assert.Equal(t, []string{"https://dash.example.com"}, c.CORS.DashboardOrigins)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL", "soon")
	_, err := Load("")
	assert.ErrorContains(t, err, "RECONCILE_INTERVAL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"production needs key", func(c *Config) { c.App.Env = "production" }, "jwt_private_key"},
		{"no mock in production", func(c *Config) {
			c.App.Env = "production"
			c.Auth.JWTPrivateKey = "pem"
			c.Auth.MockMode = true
			c.Auth.MockWebsiteID = "w1"
		}, "mock_mode"},
		{"mock needs website", func(c *Config) { c.Auth.MockMode = true }, "mock_website_id"},
		{"redis needs addr", func(c *Config) { c.Reconcile.LockBackend = "redis" }, "redis_addr"},
		{"unknown lock", func(c *Config) { c.Reconcile.LockBackend = "etcd" }, "lock_backend"},
		{"from needed with smtp", func(c *Config) { c.Mail.SMTPHost = "smtp.example.com" }, "mail.from"},
		{"bad tls mode", func(c *Config) { c.Mail.SMTPTLS = "maybe" }, "smtp_tls"},
		{"short interval", func(c *Config) { c.Reconcile.Interval = time.Second }, "interval"},
		{"wildcard cors", func(c *Config) { c.CORS.DashboardOrigins = []string{"*"} }, "wildcard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestValidateCORSOrigins(t *testing.T) {
	assert.NoError(t, ValidateCORSOrigins([]string{"https://a.example", "http://localhost:3000"}))
	assert.Error(t, ValidateCORSOrigins([]string{"http://a.example"}))
	assert.Error(t, ValidateCORSOrigins([]string{"https://a .example"}))
	assert.Error(t, ValidateCORSOrigins([]string{""}))
}
