package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const (
	// DefaultSocketPath is where the estimator listens unless configured otherwise.
	DefaultSocketPath = "/tmp/estimator.sock"

	// DefaultReadTimeout bounds how long a peer may take to send its request.
	DefaultReadTimeout = 30 * time.Second

	// DefaultModelServerPath is the model server endpoint serving model archives.
	DefaultModelServerPath = "/model"

	defaultModelServerTimeout = 30 * time.Second
	defaultMaxRetries         = 3
	defaultRetryDelay         = 2 * time.Second
)

// DefaultConfigPath returns the default path for the estimator config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "estimator", "config")
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "estimator")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "estimator")
		}
		return filepath.Join(home, ".config", "estimator")
	}
}

// DefaultConfigFile returns the config file read when none is given.
func DefaultConfigFile() string {
	return filepath.Join(DefaultConfigPath(), "config.yaml")
}

// DefaultDownloadPath returns the default directory for model artifacts.
func DefaultDownloadPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "estimator", "models")
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "estimator", "models")
	default:
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "estimator", "models")
		}
		return filepath.Join(home, ".cache", "estimator", "models")
	}
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			SocketPath:  DefaultSocketPath,
			ReadTimeout: DefaultReadTimeout,
		},
		Storage: StorageConfig{
			DownloadDir: DefaultDownloadPath(),
		},
		ModelServer: ModelServerConfig{
			Path:       DefaultModelServerPath,
			Timeout:    defaultModelServerTimeout,
			MaxRetries: defaultMaxRetries,
			RetryDelay: defaultRetryDelay,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
