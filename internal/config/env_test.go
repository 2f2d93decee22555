package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEnv_FillsEmptyFields(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "postgres://env/bills")
	t.Setenv(EnvCaptchaAPIKey, "env-key")
	t.Setenv(EnvChromePath, "/opt/chrome")
	t.Setenv(EnvTesseractPath, "")
	t.Setenv(EnvMaxRestarts, "7")

	cfg := &Config{}
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "postgres://env/bills", cfg.DatabaseURL)
	assert.Equal(t, "env-key", cfg.Captcha.APIKey)
	assert.Equal(t, "/opt/chrome", cfg.Browser.ExecPath)
	assert.Empty(t, cfg.Captcha.TesseractPath)
	assert.Equal(t, 7, cfg.RestartLimit())
}

func TestApplyEnv_FileWins(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "postgres://env/bills")
	t.Setenv(EnvMaxRestarts, "7")

	unlimited := 0
	cfg := &Config{DatabaseURL: "postgres://file/bills", MaxRestarts: &unlimited}
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "postgres://file/bills", cfg.DatabaseURL)
	assert.Equal(t, 0, cfg.RestartLimit())
}

func TestApplyEnv_InvalidMaxRestarts(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"many", "invalid BILL_AGENT_MAX_RESTARTS"},
		{"-3", "must be non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(EnvMaxRestarts, tt.value)
			err := (&Config{}).ApplyEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
