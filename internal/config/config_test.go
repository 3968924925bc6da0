package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Sessions.ConnectWait)
	assert.Equal(t, time.Hour, cfg.Reminders.Interval)
	assert.Equal(t, 30*time.Minute, cfg.Reminders.Window)
	assert.Equal(t, []string{"v1.webhooks.>"}, cfg.NATS.Webhooks.SubjectList)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "http://localhost:8080/oauth/google/callback", cfg.Google.RedirectURL)
	assert.NotEmpty(t, cfg.Sessions.AuthDir)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	dir := t.TempDir()
	yaml := []byte("server:\n  port: 9090\nreminders:\n  window: 15m\nllm:\n  model: test/model\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), yaml, 0o600))

	t.Setenv("POSTGRES_DSN", "postgres://u:p@db/concierge")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("LLM_MODEL", "env/model")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Reminders.Window)
	assert.Equal(t, "postgres://u:p@db/concierge", cfg.Database.PostgresDSN)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "env/model", cfg.LLM.Model)
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CREDENTIALS_MASTER_KEY=a2V5\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CREDENTIALS_MASTER_KEY") })

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "a2V5", cfg.Credentials.MasterKey)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
