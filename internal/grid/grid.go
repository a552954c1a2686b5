// Package grid loads declarative HCL manifests that pre-register functions
// and stream bindings at startup. A grid path may be a single .hcl file or
// a directory searched recursively.
package grid

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/funcmesh/internal/ctxlog"
)

// Function is one `function` block from a grid file.
type Function struct {
	Name       string `hcl:"name,label"`
	Shape      string `hcl:"shape"`
	Source     string `hcl:"source"`
	InputType  string `hcl:"input_type,optional"`
	OutputType string `hcl:"output_type,optional"`
}

// Binding is one `binding` block from a grid file. Its label names the
// artifact it binds.
type Binding struct {
	Artifact    string `hcl:"artifact,label"`
	Role        string `hcl:"role"`
	InputTopic  string `hcl:"input_topic,optional"`
	OutputTopic string `hcl:"output_topic,optional"`
	Interval    string `hcl:"interval,optional"`
	OnError     string `hcl:"on_error,optional"`
}

// fileConfig is the top-level structure of one grid file.
type fileConfig struct {
	Functions []*Function `hcl:"function,block"`
	Bindings  []*Binding  `hcl:"binding,block"`
}

// Model aggregates every grid file found under a path.
type Model struct {
	Functions []*Function
	Bindings  []*Binding
}

// Load parses all grid files under path into a single model.
func Load(ctx context.Context, path string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)

	filePaths, err := findGridFiles(path)
	if err != nil {
		return nil, fmt.Errorf("failed to walk grid path %s: %w", path, err)
	}
	if len(filePaths) == 0 {
		logger.Warn("No .hcl grid files found in path", "path", path)
		return &Model{}, nil
	}
	logger.Debug("Found grid files to load", "files", filePaths)

	parser := hclparse.NewParser()
	model := &Model{}
	for _, filePath := range filePaths {
		file, diags := parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse grid file %s: %s", filePath, diags.Error())
		}

		var cfg fileConfig
		diags = gohcl.DecodeBody(file.Body, nil, &cfg)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode grid file %s: %s", filePath, diags.Error())
		}

		model.Functions = append(model.Functions, cfg.Functions...)
		model.Bindings = append(model.Bindings, cfg.Bindings...)
		logger.Debug("Successfully loaded grid file", "file", filePath, "functions", len(cfg.Functions), "bindings", len(cfg.Bindings))
	}

	logger.Info("Grid loaded.", "functions", len(model.Functions), "bindings", len(model.Bindings))
	return model, nil
}

// findGridFiles resolves a grid path to concrete .hcl file paths. A file
// path is returned as-is; a directory is walked recursively.
func findGridFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".hcl") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
