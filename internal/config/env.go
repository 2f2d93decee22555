package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvDatabaseURL   = "DATABASE_URL"
	EnvCaptchaAPIKey = "CAPTCHA_API_KEY"
	EnvChromePath    = "CHROME_PATH"
	EnvTesseractPath = "TESSERACT_PATH"
	EnvMaxRestarts   = "BILL_AGENT_MAX_RESTARTS"
)

// ApplyEnv fills settings the file left empty from the environment.
// Secrets usually arrive this way, from the shell or a .env file.
func (c *Config) ApplyEnv() error {
	fill(&c.DatabaseURL, EnvDatabaseURL)
	fill(&c.Captcha.APIKey, EnvCaptchaAPIKey)
	fill(&c.Browser.ExecPath, EnvChromePath)
	fill(&c.Captcha.TesseractPath, EnvTesseractPath)

	if c.MaxRestarts == nil {
		if raw := os.Getenv(EnvMaxRestarts); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("invalid %s: %v", EnvMaxRestarts, err)
			}
			if n < 0 {
				return fmt.Errorf("%s must be non-negative, got: %d", EnvMaxRestarts, n)
			}
			c.MaxRestarts = &n
		}
	}
	return nil
}

func fill(v *string, key string) {
	if *v == "" {
		*v = os.Getenv(key)
	}
}
