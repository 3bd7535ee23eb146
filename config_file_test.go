package uplink

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const environmentsYAML = `
environments:
  production:
    base_url: https://api.example.com
    channel_url: wss://stream.example.com
    version: v2
    timeout: 30s
    max_retries: 5
    headers:
      X-Client: uplink
  test:
    base_url: http://localhost:9090
    mock_mode: true
`

func TestParseEnvironments(t *testing.T) {
	envs, err := ParseEnvironments([]byte(environmentsYAML))
	require.NoError(t, err)
	require.Len(t, envs, 2)

	prod := envs["production"]
	assert.Equal(t, "production", prod.Name)
	assert.Equal(t, "https://api.example.com", prod.BaseURL)
	assert.Equal(t, "wss://stream.example.com", prod.ChannelURL)
	assert.Equal(t, "v2", prod.Version)
	assert.Equal(t, 30*time.Second, prod.Timeout)
	assert.Equal(t, 5, prod.MaxRetries)
	assert.Equal(t, "uplink", prod.Headers["X-Client"])
	assert.False(t, prod.MockMode)

	test := envs["test"]
	assert.Equal(t, "http://localhost:9090", test.BaseURL)
	assert.True(t, test.MockMode)
	assert.Zero(t, test.Timeout)
}

func TestParseEnvironmentsBadTimeout(t *testing.T) {
	_, err := ParseEnvironments([]byte(`
environments:
  broken:
    base_url: http://localhost
    timeout: soon
`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Contains(t, err.Error(), "timeout")
}

func TestParseEnvironmentsBadYAML(t *testing.T) {
	_, err := ParseEnvironments([]byte("environments: [not, a, map"))

	require.Error(t, err)
}

func TestParseEnvironmentsEmpty(t *testing.T) {
	envs, err := ParseEnvironments([]byte(""))

	require.NoError(t, err)
	assert.Empty(t, envs)
}

func TestLoadEnvironments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "environments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(environmentsYAML), 0o644))

	envs, err := LoadEnvironments(path)

	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", envs["production"].BaseURL)
}

func TestLoadEnvironmentsMissingFile(t *testing.T) {
	_, err := LoadEnvironments(filepath.Join(t.TempDir(), "absent.yaml"))

	require.Error(t, err)
}

func TestEnvironmentTableDrivesClient(t *testing.T) {
	envs, err := ParseEnvironments([]byte(environmentsYAML))
	require.NoError(t, err)

	client := New(WithEnvironment("test", envs))

	assert.True(t, client.MockMode(), "mock_mode entry enables mock mode")
	assert.Equal(t, "http://localhost:9090", client.Endpoint().BaseURL)
}
