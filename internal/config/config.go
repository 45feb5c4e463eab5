package config

import "time"

// Config holds the main configuration for the estimator.
type Config struct {
	Version     string            `json:"version"                yaml:"version"`
	Server      ServerConfig      `json:"server,omitempty"       yaml:"server,omitempty"`
	Storage     StorageConfig     `json:"storage,omitempty"      yaml:"storage,omitempty"`
	ModelServer ModelServerConfig `json:"model_server,omitempty" yaml:"model_server,omitempty"`
	Archive     ArchiveConfig     `json:"archive,omitempty"      yaml:"archive,omitempty"`
	Logging     LoggingConfig     `json:"logging,omitempty"      yaml:"logging,omitempty"`
}

// ServerConfig holds the listening endpoints.
type ServerConfig struct {
	SocketPath     string        `json:"socket_path,omitempty"     yaml:"socket_path,omitempty"`
	ReadTimeout    time.Duration `json:"read_timeout,omitempty"    yaml:"read_timeout,omitempty"`
	MetricsAddress string        `json:"metrics_address,omitempty" yaml:"metrics_address,omitempty"` // Empty disables metrics exposition
	HealthSocket   string        `json:"health_socket,omitempty"   yaml:"health_socket,omitempty"`   // Empty disables the gRPC health server
}

// StorageConfig holds where model artifacts are kept.
type StorageConfig struct {
	DownloadDir string `json:"download_dir,omitempty" yaml:"download_dir,omitempty"`
}

// ModelServerConfig holds the remote model server settings.
type ModelServerConfig struct {
	Enabled    bool          `json:"enabled"               yaml:"enabled"`
	URL        string        `json:"url,omitempty"         yaml:"url,omitempty"`
	Path       string        `json:"path,omitempty"        yaml:"path,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"     yaml:"timeout,omitempty"`
	MaxRetries int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RetryDelay time.Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
}

// ArchiveConfig holds the static table of archived models.
type ArchiveConfig struct {
	Models []ArchiveModel `json:"models,omitempty" yaml:"models,omitempty"`
}

// ArchiveModel points a source and output type at a zipped model.
type ArchiveModel struct {
	Source     string `json:"source"      yaml:"source"`
	OutputType string `json:"output_type" yaml:"output_type"`
	URL        string `json:"url"         yaml:"url"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `json:"level,omitempty"       yaml:"level,omitempty"`
	File      string `json:"file,omitempty"        yaml:"file,omitempty"`
	ToFile    bool   `json:"to_file,omitempty"     yaml:"to_file,omitempty"`
	MaxSizeMB int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
}
