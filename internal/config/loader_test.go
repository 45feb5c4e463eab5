package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ju4n97/estimator/internal/envvar"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()

	for _, name := range []string{
		envvar.EstimatorSocket,
		envvar.EstimatorDownloadPath,
		envvar.ModelServerEnable,
		envvar.ModelServerURL,
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultSocketPath, cfg.Server.SocketPath)
	assert.Equal(t, DefaultReadTimeout, cfg.Server.ReadTimeout)
	assert.Equal(t, DefaultDownloadPath(), cfg.Storage.DownloadDir)
	assert.False(t, cfg.ModelServer.Enabled)
	assert.Equal(t, DefaultModelServerPath, cfg.ModelServer.Path)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
version: "1"
server:
  socket_path: /run/estimator.sock
  read_timeout: 5s
  metrics_address: ":9102"
storage:
  download_dir: /var/lib/estimator
model_server:
  enabled: true
  url: http://kepler-model-server:8100
  max_retries: 5
  retry_delay: 100ms
archive:
  models:
    - source: rapl-sysfs
      output_type: AbsPower
      url: https://example.com/AbsPower/rapl-sysfs.zip
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/run/estimator.sock", cfg.Server.SocketPath)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, ":9102", cfg.Server.MetricsAddress)
	assert.Equal(t, "/var/lib/estimator", cfg.Storage.DownloadDir)
	assert.True(t, cfg.ModelServer.Enabled)
	assert.Equal(t, "http://kepler-model-server:8100", cfg.ModelServer.URL)
	assert.Equal(t, DefaultModelServerPath, cfg.ModelServer.Path, "unset keys keep their default")
	assert.Equal(t, 5, cfg.ModelServer.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.ModelServer.RetryDelay)
	require.Len(t, cfg.Archive.Models, 1)
	assert.Equal(t, ArchiveModel{
		Source:     "rapl-sysfs",
		OutputType: "AbsPower",
		URL:        "https://example.com/AbsPower/rapl-sysfs.zip",
	}, cfg.Archive.Models[0])
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
version: "1"
server:
  socket_path: /run/estimator.sock
model_server:
  enabled: false
  url: http://a:8100
`)

	t.Setenv(envvar.EstimatorSocket, "/tmp/other.sock")
	t.Setenv(envvar.EstimatorDownloadPath, "/tmp/models")
	t.Setenv(envvar.ModelServerEnable, "true")
	t.Setenv(envvar.ModelServerURL, "http://b:8100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other.sock", cfg.Server.SocketPath)
	assert.Equal(t, "/tmp/models", cfg.Storage.DownloadDir)
	assert.True(t, cfg.ModelServer.Enabled)
	assert.Equal(t, "http://b:8100", cfg.ModelServer.URL)
}

func TestLoad_InvalidEnvBool(t *testing.T) {
	clearEnv(t)
	t.Setenv(envvar.ModelServerEnable, "maybe")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), envvar.ModelServerEnable)
}

func TestLoadAndValidate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid yaml", content: "version: [1"},
		{name: "empty", content: ""},
		{name: "missing version", content: "server:\n  socket_path: /tmp/x.sock\n"},
		{name: "unknown key", content: "version: \"1\"\nunknown: true\n"},
		{name: "bad duration", content: "version: \"1\"\nserver:\n  read_timeout: soon\n"},
		{name: "bad output type", content: "version: \"1\"\narchive:\n  models:\n    - {source: rapl, output_type: Watts, url: /m.zip}\n"},
		{name: "bad log level", content: "version: \"1\"\nlogging:\n  level: verbose\n"},
		{name: "archive source traversal", content: "version: \"1\"\narchive:\n  models:\n    - {source: ../etc, output_type: AbsPower, url: /m.zip}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAndValidate(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}
