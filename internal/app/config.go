package app

import (
	"strings"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// GridPath points at an .hcl file or directory of pre-registered
	// functions and bindings. Empty means start with an empty registry.
	GridPath string

	// ListenAddr is the HTTP adapter's bind address.
	ListenAddr string

	// BrokerURL selects the stream-adapter broker. Empty or "mem://"
	// runs the in-process broker; anything else is dialed as a
	// socket.io server.
	BrokerURL string

	// BrokerNamespace is the socket.io namespace for external brokers.
	BrokerNamespace string

	LogFormat     string
	LogLevel      string
	ShutdownGrace time.Duration
}

// NewConfig validates a Config and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	if strings.EqualFold(cfg.BrokerURL, "mem://") {
		cfg.BrokerURL = ""
	}
	return &cfg, nil
}
