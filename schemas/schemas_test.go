package schemas

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/jonathan/bill-agent/internal/schemas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigSchema_ValidJSON(t *testing.T) {
	data, err := os.ReadFile("config.schema.json")
	require.NoError(t, err, "should be able to read schema file")

	var schemaObj map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &schemaObj), "schema file should be valid JSON")

	_, hasSchema := schemaObj["$schema"]
	_, hasProps := schemaObj["properties"]
	assert.True(t, hasSchema && hasProps, "schema should have $schema and properties")
	assert.Equal(t, string(data), Config, "embedded schema should match the file")
}

func TestConfigSchema_AcceptsFullConfig(t *testing.T) {
	doc := `{
		"database_url": "postgres://localhost/bills",
		"log_level": "debug",
		"log_format": "json",
		"max_restarts": 3,
		"browser": {"headless": false, "action_timeout": "45s"},
		"captcha": {"solver": "api", "api_key": "k", "poll_interval": "1.5s", "max_polls": 20},
		"download": {"timeout": "2m", "interval": "500ms"},
		"mh": {
			"download_dir": "bills/mh",
			"max_attempts": 10,
			"alert_wait": "5s",
			"alert_rules": [{"contains": "Invalid CAPTCHA", "outcome": "captcha-invalid"}]
		},
		"mp": {"download_dir": "bills/mp", "alert_rules": [{"contains": "Invalid IVRS", "outcome": "invalid-account"}]}
	}`
	assert.NoError(t, schemas.ValidateJSONString(Config, doc))
}

func TestConfigSchema_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", `{"max_restart": 3}`},
		{"bad duration", `{"download": {"timeout": "two minutes"}}`},
		{"unknown solver", `{"captcha": {"solver": "gpt"}}`},
		{"negative restarts", `{"max_restarts": -1}`},
		{"bad outcome", `{"mh": {"alert_rules": [{"contains": "x", "outcome": "login-succeeded"}]}}`},
		{"empty contains", `{"mh": {"alert_rules": [{"contains": "", "outcome": "unexpected"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schemas.ValidateJSONString(Config, tt.doc)
			require.Error(t, err)
			_, ok := err.(*schemas.ValidationError)
			assert.True(t, ok, "error should be ValidationError type, got %T", err)
		})
	}
}

func TestConfigSchema_ExampleConfig(t *testing.T) {
	data, err := os.ReadFile("../config.example.json")
	require.NoError(t, err)
	assert.NoError(t, schemas.ValidateBytes("config.schema.json", Config, data))
}
