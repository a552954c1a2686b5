package grid

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSingleFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "mesh.hcl", `
function "shout" {
  shape       = "transform"
  source      = "upper(x)"
  input_type  = "string"
  output_type = "string"
}

binding "shout" {
  role         = "processor"
  input_topic  = "raw"
  output_topic = "shouted"
  on_error     = "skip"
}
`)

	model, err := Load(context.Background(), path)
	require.NoError(t, err)

	wantFunctions := []*Function{{
		Name:       "shout",
		Shape:      "transform",
		Source:     "upper(x)",
		InputType:  "string",
		OutputType: "string",
	}}
	if diff := cmp.Diff(wantFunctions, model.Functions); diff != "" {
		t.Errorf("functions mismatch (-want +got):\n%s", diff)
	}

	wantBindings := []*Binding{{
		Artifact:    "shout",
		Role:        "processor",
		InputTopic:  "raw",
		OutputTopic: "shouted",
		OnError:     "skip",
	}}
	if diff := cmp.Diff(wantBindings, model.Bindings); diff != "" {
		t.Errorf("bindings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDirectoryRecursively(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "functions.hcl", `
function "gen" {
  shape  = "source"
  source = "\"tick-$${n}\""
}
`)
	writeFile(t, dir, filepath.Join("nested", "bindings.hcl"), `
binding "gen" {
  role         = "source"
  output_topic = "ticks"
  interval     = "250ms"
}
`)
	writeFile(t, dir, "notes.txt", "not a grid file")

	model, err := Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, model.Functions, 1)
	require.Len(t, model.Bindings, 1)
	assert.Equal(t, "gen", model.Functions[0].Name)
	// The $$ escape keeps the interpolation for compile time.
	assert.Equal(t, `"tick-${n}"`, model.Functions[0].Source)
	assert.Equal(t, "250ms", model.Bindings[0].Interval)
}

func TestLoadEmptyDirectory(t *testing.T) {
	t.Parallel()

	model, err := Load(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, model.Functions)
	assert.Empty(t, model.Bindings)
}

func TestLoadMissingPath(t *testing.T) {
	t.Parallel()

	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "broken.hcl", `function "x" {`)
	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.hcl")
}

func TestLoadRejectsUnknownAttribute(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "bad.hcl", `
function "x" {
  shape  = "transform"
  source = "upper(x)"
  flavor = "spicy"
}
`)
	_, err := Load(context.Background(), path)
	assert.Error(t, err)
}
