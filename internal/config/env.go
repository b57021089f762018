package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Environment holds settings read from GLITCH_* variables. Command-line
// flags take precedence over these.
type Environment struct {
	DBPath       string `env:"GLITCH_DB_PATH" envDefault:"glitch.db"`
	ScopeSerial  string `env:"GLITCH_SCOPE_SERIAL"`
	TargetPort   string `env:"GLITCH_TARGET_PORT"`
	TargetBaud   int    `env:"GLITCH_TARGET_BAUD" envDefault:"38400"`
	LogLevel     string `env:"GLITCH_LOG_LEVEL" envDefault:"info"`
	OTelEndpoint string `env:"GLITCH_OTEL_ENDPOINT"`
	Listen       string `env:"GLITCH_LISTEN"`
}

// LoadEnvironment reads the process environment.
func LoadEnvironment() (Environment, error) {
	var e Environment
	if err := env.Parse(&e); err != nil {
		return e, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// LoadEnvironmentFrom reads variables from vars instead of the process.
func LoadEnvironmentFrom(vars map[string]string) (Environment, error) {
	var e Environment
	if err := env.ParseWithOptions(&e, env.Options{Environment: vars}); err != nil {
		return e, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}
