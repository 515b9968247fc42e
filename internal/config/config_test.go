package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, ":8000", cfg.Server.Addr)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	require.Equal(t, []string{"*"}, cfg.Server.AllowOrigins)
	require.Equal(t, "models/model.onnx", cfg.Model.Path)
	require.Equal(t, 10*time.Minute, cfg.Redis.TTL)
	require.Empty(t, cfg.Database.DSN)
	require.Equal(t, "http://localhost:8000/predict", cfg.Form.PredictURL)
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := []byte(`
server:
  addr: ":9100"
  maxuploadbytes: 2048
model:
  path: /srv/models/catdog.onnx
redis:
  addr: localhost:6379
  ttl: 30s
`)
	require.NoError(t, os.WriteFile(path, yamlBody, 0o600))

	t.Setenv("CLASSIFIER_SERVER_ADDR", ":9200")
	t.Setenv("CLASSIFIER_LOG_LEVEL", "debug")
	t.Setenv("CLASSIFIER_SERVER_ALLOWORIGINS", "http://a.test,http://b.test")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":9200", cfg.Server.Addr)
	require.Equal(t, int64(2048), cfg.Server.MaxUploadBytes)
	require.Equal(t, "/srv/models/catdog.onnx", cfg.Model.Path)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 30*time.Second, cfg.Redis.TTL)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowOrigins)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsEmptyModelPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Model.Path = ""
	cfg.Server.MaxUploadBytes = 0
	err = cfg.Validate()
	require.ErrorContains(t, err, "model.path is required")
	require.ErrorContains(t, err, "server.maxuploadbytes must be positive")
}
