package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/funcmesh/internal/cli"
)

func TestRunHelpExitsCleanly(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := run(context.Background(), &out, []string{"-h"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Usage:")
}

func TestRunReportsParseError(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := run(context.Background(), &out, []string{"-bogus"})
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestRunFailsOnBrokenGrid(t *testing.T) {
	t.Parallel()

	gridPath := filepath.Join(t.TempDir(), "mesh.hcl")
	require.NoError(t, os.WriteFile(gridPath, []byte(`
function "bad" {
  shape  = "transform"
  source = "nope(x)"
}
`), 0o644))

	var out bytes.Buffer
	err := run(context.Background(), &out, []string{"-listen", "127.0.0.1:0", gridPath})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load grid")
}

func TestRunFailsOnMissingGridPath(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := run(context.Background(), &out, []string{"-listen", "127.0.0.1:0", filepath.Join(t.TempDir(), "absent")})
	assert.Error(t, err)
}
