package env

import (
	"os"
	"strings"

	"github.com/ju4n97/estimator/internal/envvar"
)

// Environment is the runtime environment the estimator runs in.
type Environment string

const (
	// Development enables human-friendly console output.
	Development Environment = "development"

	// Production enables structured JSON output.
	Production Environment = "production"
)

// FromEnv reads the environment from ESTIMATOR_ENV, defaulting to production.
func FromEnv() Environment {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envvar.EstimatorEnv))) {
	case "dev", "development", "local":
		return Development
	default:
		return Production
	}
}

// IsDevelopment reports whether e is the development environment.
func (e Environment) IsDevelopment() bool {
	return e == Development
}
