package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Browser.BatchSize)
	assert.Equal(t, 10, cfg.Browser.MaxConcurrentPages)
	assert.Equal(t, 120*time.Second, cfg.GetPageTimeout())
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 2*time.Second, cfg.GetRetryDelay())
	assert.Equal(t, 20*time.Second, cfg.GetAPITimeout())
	assert.Less(t, cfg.API.MaxConcurrent, cfg.Browser.MaxConcurrentPages)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "json", cfg.Storage.Driver)
	assert.Equal(t, []string{"image", "media", "font", "stylesheet"}, cfg.Browser.BlockedResources)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("MAX_CONCURRENT_PAGES", "4")
	t.Setenv("HEADLESS", "false")
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	path := writeConfig(t, `
browser:
  batch_size: 5
  page_timeout_s: 60
storage:
  driver: postgres
  dsn: "postgres://localhost/manga"
scheduler:
  mode: cron
  cron_expr: "0 9 * * *"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Browser.BatchSize)
	assert.Equal(t, 4, cfg.Browser.MaxConcurrentPages)
	assert.Equal(t, 60*time.Second, cfg.GetPageTimeout())
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "42", cfg.Storage.Scope)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mongo" }, true},
		{"sql without dsn", func(c *Config) { c.Storage.Driver = "mssql" }, true},
		{"interval without seconds", func(c *Config) { c.Scheduler.Mode = "interval" }, true},
		{"cron without expr", func(c *Config) { c.Scheduler.Mode = "cron" }, true},
		{"token without chat", func(c *Config) { c.Notify.TelegramToken = "x" }, true},
		{"zero attempts", func(c *Config) { c.Retry.Attempts = -1 }, true},
		{"negative retry delay", func(c *Config) { c.Retry.DelayMS = intPtr(-1) }, true},
		{"zero retry delay", func(c *Config) { c.Retry.DelayMS = intPtr(0) }, false},
		{"negative wait timeout", func(c *Config) { c.Browser.WaitSelectorTimeout = intPtr(-1) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfigInvalidEnv(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("PAGE_TIMEOUT", "soon")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigKeepsExplicitZero(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	path := writeConfig(t, `
browser:
  wait_selector_timeout_s: 0
retry:
  delay_ms: 0
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), cfg.GetRetryDelay())
	assert.Equal(t, time.Duration(0), cfg.GetWaitSelectorTimeout())
	assert.Equal(t, 3, cfg.Retry.Attempts)
}
