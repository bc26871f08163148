package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunValidateValidConfig(t *testing.T) {
	path := writeConfigFile(t, testConfigYAML)

	out, err := executeCommand(t, "validate", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, out, "Configuration OK")
	assert.Contains(t, out, "https://example.my.remote")
	assert.Contains(t, out, "Jobs:    2")
}

func TestRunValidateInvalidConfig(t *testing.T) {
	path := writeConfigFile(t, `
remote:
  base_url: not-a-url
jobs:
  broken:
    entities: []
`)

	_, err := executeCommand(t, "validate", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration invalid")
	assert.Contains(t, err.Error(), "remote.base_url")
	assert.Contains(t, err.Error(), "entities")
}

func TestValidateCommandStructure(t *testing.T) {
	assert.Equal(t, "validate", validateCmd.Use)
	assert.NotNil(t, validateCmd.RunE)
	assert.NotNil(t, validateCmd.Flags().Lookup("remote"))
}
