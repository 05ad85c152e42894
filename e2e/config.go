package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_SERVER_URL is the HTTP base URL of a running server; the suites
	// are skipped when it is empty.
	ServerURL  string `envconfig:"E2E_SERVER_URL"`
	HealthAddr string `envconfig:"E2E_HEALTH_ADDR" default:"localhost:8081"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
