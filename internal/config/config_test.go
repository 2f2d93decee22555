package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/bill-agent/internal/alerts"
	"github.com/jonathan/bill-agent/internal/schemas"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func intPtr(n int) *int { return &n }

func TestLoadConfig_ValidJSON(t *testing.T) {
	path := writeConfig(t, `{
		"database_url": "postgres://localhost/bills",
		"log_level": "debug",
		"max_restarts": 3,
		"browser": {"headless": false},
		"captcha": {"solver": "api", "api_key": "secret", "poll_interval": "1500ms"},
		"download": {"timeout": "2m"},
		"mh": {
			"download_dir": "out/mh",
			"print_to_pdf": true,
			"alert_rules": [{"contains": "Server busy", "outcome": "unexpected"}]
		}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres://localhost/bills", cfg.DatabaseURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.RestartLimit())
	require.NotNil(t, cfg.Browser.Headless)
	assert.False(t, cfg.Browser.IsHeadless())
	assert.Equal(t, 1500*time.Millisecond, cfg.Captcha.PollInterval.D())
	assert.Equal(t, 2*time.Minute, cfg.Download.Timeout.D())
	assert.True(t, cfg.MH.PrintToPDF)
	assert.Equal(t, []alerts.Rule{{Contains: "Server busy", Outcome: alerts.Unexpected}}, cfg.MH.AlertRules)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{ invalid json }`))
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_SchemaViolation(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{"max_restarts": -1, "mh": {"alert_wait": "soon"}}`))
	require.Error(t, err)
	assert.Nil(t, cfg)

	var validationErr *schemas.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Len(t, validationErr.Errors, 2)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Browser.IsHeadless())
	assert.Equal(t, 10, cfg.MH.MaxAttempts)
	assert.Equal(t, 120*time.Second, cfg.Download.Timeout.D())
	assert.Equal(t, alerts.LoginRules(), cfg.MH.AlertRules)
	assert.Equal(t, alerts.IVRSRules(), cfg.MP.AlertRules)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "LogLevel"},
		{"negative restarts", func(c *Config) { c.MaxRestarts = intPtr(-1) }, "MaxRestarts"},
		{"api without key", func(c *Config) { c.Captcha.Solver = "api" }, "api_key"},
		{"empty rule", func(c *Config) { c.MP.AlertRules = []alerts.Rule{{Outcome: alerts.InvalidAccount}} }, "Contains"},
		{"bad url", func(c *Config) { c.MH.LoginURL = "not a url" }, "LoginURL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeWithDefaults(t *testing.T) {
	headless := false
	cfg := &Config{
		LogLevel: "warn",
		Browser:  BrowserConfig{Headless: &headless},
		MH:       MHConfig{DownloadDir: "custom", MaxAttempts: 3},
	}

	merged := cfg.MergeWithDefaults(Defaults())

	assert.Equal(t, "warn", merged.LogLevel)
	assert.Equal(t, "text", merged.LogFormat)
	assert.False(t, merged.Browser.IsHeadless(), "explicit false must survive the merge")
	assert.Equal(t, "custom", merged.MH.DownloadDir)
	assert.Equal(t, 3, merged.MH.MaxAttempts)
	assert.Equal(t, Defaults().MH.LoginURL, merged.MH.LoginURL)
	assert.Equal(t, Defaults().MP.Settle, merged.MP.Settle)
	assert.Equal(t, 5, merged.RestartLimit())

	cfg.MaxRestarts = intPtr(0)
	assert.Equal(t, 0, cfg.MergeWithDefaults(Defaults()).RestartLimit(), "explicit 0 means unlimited")

	assert.Equal(t, "custom", cfg.MH.DownloadDir, "receiver must not change")
	assert.Empty(t, cfg.LogFormat)
}

func TestRestartLimit(t *testing.T) {
	assert.Equal(t, 0, Config{}.RestartLimit(), "unset means unlimited")
	assert.Equal(t, 5, Defaults().RestartLimit())
	assert.Equal(t, 0, (&Config{MaxRestarts: intPtr(0)}).MergeWithDefaults(Defaults()).RestartLimit())
	assert.Equal(t, 2, (&Config{MaxRestarts: intPtr(2)}).MergeWithDefaults(Defaults()).RestartLimit())
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"90s"`)))
	assert.Equal(t, 90*time.Second, d.D())

	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))

	assert.Error(t, d.UnmarshalJSON([]byte(`90`)))
	assert.Error(t, d.UnmarshalJSON([]byte(`"ninety"`)))
}
