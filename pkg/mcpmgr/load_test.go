package mcpmgr

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
servers:
  - id: filesystem
    name: Filesystem
    transport: stdio
    command: npx
    args: ["-y", "@modelcontextprotocol/server-filesystem", "${MCPMGR_TEST_ROOT}"]
    env:
      LOG_LEVEL: debug
    terminateGrace: 2
  - id: search
    baseUrl: https://search.example.com/mcp
    headers:
      Authorization: Bearer ${MCPMGR_TEST_TOKEN}
    connectTimeout: 10s
    callTimeout: 1m30s
  - id: legacy
    transport: sse
    baseUrl: https://legacy.example.com/events
actions:
  search:
    query:
      tool: web_search
`

func TestParseRegistry(t *testing.T) {
	t.Setenv("MCPMGR_TEST_ROOT", "/srv/data")
	t.Setenv("MCPMGR_TEST_TOKEN", "s3cret")

	reg, err := ParseRegistry([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, []string{"filesystem", "legacy", "search"}, reg.IDs())

	fs, err := reg.Resolve("filesystem")
	require.NoError(t, err)
	assert.Equal(t, TransportSubprocess, fs.Transport)
	assert.Equal(t, "Filesystem", fs.DisplayName())
	assert.Equal(t, []string{"-y", "@modelcontextprotocol/server-filesystem", "/srv/data"}, fs.Args)
	assert.Equal(t, "debug", fs.Env["LOG_LEVEL"])
	assert.Equal(t, 2*time.Second, fs.TerminateGrace)

	search, err := reg.Resolve("search")
	require.NoError(t, err)
	assert.Equal(t, TransportNetwork, search.Transport)
	assert.Equal(t, "Bearer s3cret", search.Headers.Get("Authorization"))
	assert.Equal(t, 10*time.Second, search.ConnectTimeout)
	assert.Equal(t, 90*time.Second, search.CallTimeout)
	assert.Nil(t, search.PreferSSE)

	legacy, err := reg.Resolve("legacy")
	require.NoError(t, err)
	require.NotNil(t, legacy.PreferSSE)
	assert.True(t, *legacy.PreferSSE)
}

func TestParseRegistryErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"bad yaml":          "servers: [",
		"unknown transport": "servers:\n  - id: a\n    transport: pigeon\n    command: x\n",
		"no endpoint":       "servers:\n  - id: a\n",
		"bad duration":      "servers:\n  - id: a\n    command: x\n    callTimeout: soon\n",
		"duplicate":         "servers:\n  - id: a\n    command: x\n  - id: a\n    command: y\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadRegistryFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "servers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("servers:\n  - id: a\n    command: server-a\n"), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.True(t, reg.Has("a"))

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}
