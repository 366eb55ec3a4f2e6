package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeReportsUnreachableServers(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}
	t.Parallel()

	path := filepath.Join(t.TempDir(), "servers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"servers:\n"+
			"  - id: ghost\n    command: /nonexistent/mcp-server\n"+
			"  - id: phantom\n    command: /nonexistent/other-server\n"), 0o600))

	var out bytes.Buffer
	ok, err := run(context.Background(), []string{"--config", path, "--timeout", "10s"}, &out)
	require.NoError(t, err)
	assert.False(t, ok)

	dec := json.NewDecoder(&out)
	var servers []string
	for dec.More() {
		var line struct {
			Server   string `json:"server"`
			Envelope struct {
				Success bool   `json:"success"`
				Error   string `json:"error"`
			} `json:"envelope"`
		}
		require.NoError(t, dec.Decode(&line))
		assert.False(t, line.Envelope.Success)
		assert.NotEmpty(t, line.Envelope.Error)
		servers = append(servers, line.Server)
	}
	assert.Equal(t, []string{"ghost", "phantom"}, servers)
}

func TestProbeFlagErrors(t *testing.T) {
	t.Parallel()

	_, err := run(context.Background(), []string{"--op", "status"}, &bytes.Buffer{})
	assert.Error(t, err, "config is required")

	_, err = run(context.Background(), []string{"--config", "x.yaml", "--op", "explode"}, &bytes.Buffer{})
	assert.Error(t, err)
}
