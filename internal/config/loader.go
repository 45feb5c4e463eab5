package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"

	"github.com/ju4n97/estimator/internal/envvar"
	"github.com/ju4n97/estimator/internal/xfs"
)

//go:embed schema/config.schema.json
var configSchemaJSON string

var configSchema = jsonschema.MustCompileString("config.schema.json", configSchemaJSON)

// Load reads the config file at path on top of the defaults and applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" && xfs.Exists(path) {
		loaded, err := LoadAndValidate(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		slog.Debug("No config file, using defaults", "path", path)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Storage.DownloadDir = xfs.ExpandTilde(cfg.Storage.DownloadDir)
	cfg.Server.SocketPath = xfs.ExpandTilde(cfg.Server.SocketPath)

	return cfg, nil
}

// LoadAndValidate loads the config file at path, validates it against the
// config schema and decodes it over the defaults.
func LoadAndValidate(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config: %w", err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: invalid YAML: %w", err)
	}
	if raw == nil {
		return nil, errors.New("config: file is empty")
	}

	if err := configSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	return config, nil
}

// applyEnv overrides config values with the environment.
func applyEnv(cfg *Config) error {
	if v := os.Getenv(envvar.EstimatorSocket); v != "" {
		cfg.Server.SocketPath = v
	}
	if v := os.Getenv(envvar.EstimatorDownloadPath); v != "" {
		cfg.Storage.DownloadDir = v
	}
	if v := os.Getenv(envvar.ModelServerURL); v != "" {
		cfg.ModelServer.URL = v
	}
	if v := os.Getenv(envvar.ModelServerEnable); v != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: invalid %s %q: %w", envvar.ModelServerEnable, v, err)
		}
		cfg.ModelServer.Enabled = enabled
	}

	return nil
}
