package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/vk/funcmesh/internal/app"
)

// fileConfig maps the TOML server config keys onto app.Config fields.
type fileConfig struct {
	GridPath        string `toml:"grid_path"`
	ListenAddr      string `toml:"listen_addr"`
	BrokerURL       string `toml:"broker_url"`
	BrokerNamespace string `toml:"broker_namespace"`
	LogFormat       string `toml:"log_format"`
	LogLevel        string `toml:"log_level"`
	ShutdownGrace   string `toml:"shutdown_grace"`
}

// loadFileConfig reads a TOML config file. Only keys present in the file
// are applied, so flag and built-in defaults survive for the rest.
func loadFileConfig(path string) (app.Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return app.Config{}, fmt.Errorf("load config file: %w", err)
	}

	var cfg app.Config
	if meta.IsDefined("grid_path") {
		cfg.GridPath = strings.TrimSpace(raw.GridPath)
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("broker_url") {
		cfg.BrokerURL = strings.TrimSpace(raw.BrokerURL)
	}
	if meta.IsDefined("broker_namespace") {
		cfg.BrokerNamespace = strings.TrimSpace(raw.BrokerNamespace)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(raw.LogFormat))
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}
	if meta.IsDefined("shutdown_grace") {
		grace, err := time.ParseDuration(raw.ShutdownGrace)
		if err != nil {
			return app.Config{}, fmt.Errorf("load config file: bad shutdown_grace: %w", err)
		}
		cfg.ShutdownGrace = grace
	}
	return cfg, nil
}
