package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bulkvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidFile(t *testing.T) {
	path := writeTempConfig(t, `
remote:
  base_url: https://example.my.remote
  access_token: secret-token
  api_version: "62.0"
output:
  folder: /tmp/backup
  sink: csv
jobs:
  nightly:
    entities: [Account, Order]
    include_related: true
    max_depth: 2
    priority_only: true
processing:
  max_poll_attempts: 120
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.my.remote", cfg.Remote.BaseURL)
	assert.Equal(t, "secret-token", cfg.Remote.AccessToken)
	assert.Equal(t, []string{"Account", "Order"}, cfg.Jobs["nightly"].Entities)
	assert.True(t, cfg.Jobs["nightly"].IncludeRelated)
	assert.Equal(t, 2, cfg.Jobs["nightly"].MaxDepth)
	// Overridden value
	assert.Equal(t, 120, cfg.Processing.MaxPollAttempts)
	// Defaults survive partial config
	assert.Equal(t, 1, cfg.Processing.PollIntervalSeconds)
	assert.Equal(t, 200, cfg.Processing.PredicateIDLimit)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/bulkvault.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("BV_TOKEN", "env-token")

	path := writeTempConfig(t, `
remote:
  base_url: https://example.my.remote
  access_token: ${BV_TOKEN}
jobs:
  j:
    entities: [Account]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Remote.AccessToken)
}

func TestLoad_EnvSubstitution_MissingVarKept(t *testing.T) {
	path := writeTempConfig(t, `
remote:
  base_url: https://example.my.remote
  access_token: ${BV_DOES_NOT_EXIST}
jobs:
  j:
    entities: [Account]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${BV_DOES_NOT_EXIST}", cfg.Remote.AccessToken)
}

func TestLoadFromViper(t *testing.T) {
	v := viper.New()
	v.Set("remote.base_url", "https://example.my.remote")
	v.Set("output.sink", "database")
	v.Set("output.database.driver", "postgres")

	cfg, err := LoadFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "database", cfg.Output.Sink)
	assert.Equal(t, "postgres", cfg.Output.Database.Driver)
}
