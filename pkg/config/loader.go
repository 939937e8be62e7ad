package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Environment names understood by every service.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Load parses environment variables into the provided struct using its
// `env` and `envDefault` tags.
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// RequireSecret rejects an unset, placeholder or short signing secret.
// Development environments accept anything so local runs need no setup.
func RequireSecret(environment, name, value, placeholder string, minLen int) error {
	if environment == EnvDevelopment {
		return nil
	}
	if value == "" || value == placeholder {
		return fmt.Errorf("%s must be explicitly set via environment variable in %q mode", name, environment)
	}
	if len(value) < minLen {
		return fmt.Errorf("%s must be at least %d characters long, got %d", name, minLen, len(value))
	}
	return nil
}
