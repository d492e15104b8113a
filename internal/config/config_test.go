package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geoeditors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "0.0.0.0:5001", cfg.Addr())
	assert.Equal(t, filepath.Join("data", "x.tsv"), cfg.DataPath("x.tsv"))
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
source:
  start_month: "2024-01"
  timeout: 5s
storage:
  type: sqlite
  data_dir: /var/lib/geoeditors
web:
  trend_top_n: 0
log:
  format: json
`)
	t.Setenv("GEOEDITORS_SERVER_HOST", "127.0.0.1")
	t.Setenv("GEOEDITORS_UPDATE_CONCURRENCY", "8")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, "2024-01", cfg.Source.StartMonth)
	assert.Equal(t, 5*time.Second, cfg.Source.Timeout)
	assert.Equal(t, StorageSQLite, cfg.Storage.Type)
	assert.Equal(t, "/var/lib/geoeditors", cfg.Storage.DataDir)
	assert.Equal(t, 8, cfg.Update.Concurrency)
	assert.Equal(t, 1, cfg.Web.TrendTopN, "clamped to at least one")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "ghp_test", cfg.Boundaries.GitHubToken)
	assert.Equal(t, "en.wikipedia", cfg.Web.DefaultProject, "unset keys keep their defaults")
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name        string
		modify      func(c *Config)
		expectedErr string
	}{
		{name: "defaults are valid", modify: func(c *Config) {}},
		{name: "unknown store", modify: func(c *Config) { c.Storage.Type = "mongo" }, expectedErr: "unknown storage.type"},
		{name: "postgres needs a dsn", modify: func(c *Config) { c.Storage.Type = StoragePostgres }, expectedErr: "storage.dsn is required"},
		{name: "empty data dir", modify: func(c *Config) { c.Storage.DataDir = "" }, expectedErr: "data_dir"},
		{name: "bad start month", modify: func(c *Config) { c.Source.StartMonth = "July" }, expectedErr: "start_month"},
		{name: "zero rate limit", modify: func(c *Config) { c.Source.RateLimit = 0 }, expectedErr: "rate_limit"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			err := cfg.Validate()
			if tc.expectedErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.expectedErr)
		})
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to read config")
}
