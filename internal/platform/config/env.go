package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Environment names the deployment mode a process runs in.
type Environment string

const (
	// Development allows sanctioned local fallbacks for missing values.
	Development Environment = "development"
	// Production requires every boundary value to be configured explicitly.
	Production Environment = "production"
)

// ParseEnvironment normalizes a raw environment name. Unknown values resolve to
// Production so a typo never unlocks development fallbacks.
func ParseEnvironment(raw string) Environment {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "dev", "development", "local":
		return Development
	default:
		return Production
	}
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// RequireInProduction returns value when set. In development an empty value
// resolves to fallback; in production it is a configuration error naming key.
func RequireInProduction(environment Environment, key, value, fallback string) (string, error) {
	value = strings.TrimSpace(value)
	if value != "" {
		return value, nil
	}
	if environment == Development && strings.TrimSpace(fallback) != "" {
		return strings.TrimSpace(fallback), nil
	}
	return "", fmt.Errorf("%s is required in %s", key, environment)
}
