package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_SERVER_URL is the WebSocket endpoint; the suites are skipped without it
	ServerURL  string `envconfig:"E2E_SERVER_URL"`
	HealthAddr string `envconfig:"E2E_HEALTH_ADDR" default:"localhost:8081"`
	JWTSecret  string `envconfig:"JWT_SECRET"`
	// E2E_MSGPACK runs the scenarios over binary frames
	Msgpack bool `envconfig:"E2E_MSGPACK" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
