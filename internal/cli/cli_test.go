package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cfg, shouldExit, err := Parse(nil, &out)
	require.NoError(t, err)
	assert.False(t, shouldExit)
	assert.Empty(t, cfg.GridPath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ShutdownGrace)
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	args := []string{
		"-listen", "127.0.0.1:9090",
		"-broker", "ws://broker:3000",
		"-namespace", "/mesh",
		"-log-format", "text",
		"-log-level", "debug",
		"-shutdown-grace", "2s",
		"-grid", "mesh.hcl",
	}
	cfg, shouldExit, err := Parse(args, &out)
	require.NoError(t, err)
	assert.False(t, shouldExit)
	assert.Equal(t, "mesh.hcl", cfg.GridPath)
	assert.Equal(t, "127.0.0.1:9090", cfg.ListenAddr)
	assert.Equal(t, "ws://broker:3000", cfg.BrokerURL)
	assert.Equal(t, "/mesh", cfg.BrokerNamespace)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.ShutdownGrace)
}

func TestParsePositionalGridPath(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cfg, _, err := Parse([]string{"grids/"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "grids/", cfg.GridPath)
}

func TestParseHelp(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cfg, shouldExit, err := Parse([]string{"-h"}, &out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseUnknownFlag(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	_, _, err := Parse([]string{"-bogus"}, &out)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestParseInvalidLogSettings(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		args []string
	}{
		{name: "bad format", args: []string{"-log-format", "xml"}},
		{name: "bad level", args: []string{"-log-level", "verbose"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			_, _, err := Parse(tc.args, &out)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "funcmesh.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseConfigFile(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
grid_path = "grids/"
listen_addr = "127.0.0.1:9191"
broker_url = "ws://broker:3000"
log_format = "text"
log_level = "warn"
shutdown_grace = "10s"
`)

	var out bytes.Buffer
	cfg, _, err := Parse([]string{"-config", path}, &out)
	require.NoError(t, err)
	assert.Equal(t, "grids/", cfg.GridPath)
	assert.Equal(t, "127.0.0.1:9191", cfg.ListenAddr)
	assert.Equal(t, "ws://broker:3000", cfg.BrokerURL)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ShutdownGrace)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
listen_addr = "127.0.0.1:9191"
log_level = "warn"
`)

	var out bytes.Buffer
	cfg, _, err := Parse([]string{"-config", path, "-listen", ":7070", "-log-level", "debug"}, &out)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestConfigFileBeatsUnsetFlagDefaults(t *testing.T) {
	t.Parallel()

	// log settings have flag defaults; the file value must survive when the
	// flag is not given explicitly.
	path := writeConfigFile(t, `
log_format = "text"
log_level = "error"
`)

	var out bytes.Buffer
	cfg, _, err := Parse([]string{"-config", path}, &out)
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestParseConfigFileErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		_, _, err := Parse([]string{"-config", filepath.Join(t.TempDir(), "nope.toml")}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Parallel()
		path := writeConfigFile(t, `shutdown_grace = "soon"`)
		var out bytes.Buffer
		_, _, err := Parse([]string{"-config", path}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Contains(t, exitErr.Message, "shutdown_grace")
	})
}
