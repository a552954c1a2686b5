// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the primary execution lifecycle, decoupled
// from any specific entrypoint like a CLI or server.
package app

import (
	"io"
	"log/slog"

	"github.com/vk/funcmesh/internal/compile"
	"github.com/vk/funcmesh/internal/httpapi"
	"github.com/vk/funcmesh/internal/invoke"
	"github.com/vk/funcmesh/internal/registry"
	"github.com/vk/funcmesh/internal/streamadapter"
)

// App encapsulates the runtime's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	library  *compile.Library
	compiler *compile.Compiler
	registry *registry.Registry
	invoker  *invoke.Invoker
	api      *httpapi.API
	bindings []streamadapter.Binding
}

// New is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger, function library,
// and registry.
func New(outW io.Writer, cfg *Config, modules ...compile.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	lib := compile.NewLibrary()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(lib)
	}
	logger.Debug("All function modules registered.", "count", len(modules), "functions", len(lib.Names()))

	comp := compile.New(lib)
	reg := registry.New()
	inv := invoke.New()

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		library:  lib,
		compiler: comp,
		registry: reg,
		invoker:  inv,
		api:      httpapi.New(reg, comp, inv),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// API returns the HTTP dispatch surface. This is primarily for testing and
// for hosts embedding the runtime behind their own HTTP layer.
func (a *App) API() *httpapi.API {
	return a.api
}

// Bindings returns the stream bindings loaded from the grid. This is
// primarily for testing.
func (a *App) Bindings() []streamadapter.Binding {
	return a.bindings
}
