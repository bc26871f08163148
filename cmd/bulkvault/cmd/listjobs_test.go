package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bulkvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const testConfigYAML = `
remote:
  base_url: https://example.my.remote
  access_token: secret
  api_version: "62.0"
output:
  folder: /tmp/backup
  sink: csv
jobs:
  nightly:
    entities: [Account, Order]
    include_related: true
    max_depth: 2
    fetch_blobs: true
  weekly:
    entities: [Contact]
    where: "IsDeleted = false"
`

func TestRunListJobs(t *testing.T) {
	path := writeConfigFile(t, testConfigYAML)

	out, err := executeCommand(t, "list-jobs", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, out, "nightly")
	assert.Contains(t, out, "weekly")
	assert.Contains(t, out, "Account, Order")
	assert.Contains(t, out, "Include Related: true")
	assert.Contains(t, out, "Max Depth:       2")
	assert.Contains(t, out, "WHERE:           IsDeleted = false")
	assert.Contains(t, out, "Total: 2 job(s)")
}

func TestRunListJobsEmptyConfig(t *testing.T) {
	path := writeConfigFile(t, `
remote:
  base_url: https://example.my.remote
  access_token: secret
`)

	out, err := executeCommand(t, "list-jobs", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No jobs defined")
}

func TestRunListJobsMissingConfig(t *testing.T) {
	_, err := executeCommand(t, "list-jobs", "--config", "/nonexistent.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
