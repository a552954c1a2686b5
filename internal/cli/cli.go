// Package cli parses command-line arguments and the optional TOML server
// config file into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/funcmesh/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("funcmesh", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
funcmesh - a runtime function registry with HTTP and stream adapters.

Usage:
  funcmesh [options] [GRID_PATH]

Arguments:
  GRID_PATH
    Path to a single .hcl grid file or a directory containing .hcl files,
    declaring functions and stream bindings to load at startup.

Options:
`)
		flagSet.PrintDefaults()
	}

	gridFlag := flagSet.String("grid", "", "Path to the grid file or directory.")
	configFlag := flagSet.String("config", "", "Path to a TOML server config file.")
	listenFlag := flagSet.String("listen", "", "HTTP adapter bind address. Default ':8080'.")
	brokerFlag := flagSet.String("broker", "", "Broker URL. Empty runs the in-process broker.")
	namespaceFlag := flagSet.String("namespace", "", "socket.io namespace for external brokers.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	graceFlag := flagSet.Duration("shutdown-grace", 0, "Graceful shutdown window. Default 5s.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	cfg := app.Config{}

	// A TOML file provides the base layer; flags override it.
	if *configFlag != "" {
		fileCfg, err := loadFileConfig(*configFlag)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		cfg = fileCfg
	}

	gridPath := cfg.GridPath
	if *gridFlag != "" {
		gridPath = *gridFlag
	} else if flagSet.NArg() > 0 {
		gridPath = flagSet.Arg(0)
	}
	cfg.GridPath = gridPath

	if *listenFlag != "" {
		cfg.ListenAddr = *listenFlag
	}
	if *brokerFlag != "" {
		cfg.BrokerURL = *brokerFlag
	}
	if *namespaceFlag != "" {
		cfg.BrokerNamespace = *namespaceFlag
	}
	if *graceFlag > 0 {
		cfg.ShutdownGrace = *graceFlag
	}

	// An explicitly-set flag beats the config file; a flag left at its
	// default only fills a gap.
	setFlags := map[string]bool{}
	flagSet.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	if setFlags["log-format"] || cfg.LogFormat == "" {
		cfg.LogFormat = strings.ToLower(*logFormatFlag)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	if setFlags["log-level"] || cfg.LogLevel == "" {
		cfg.LogLevel = strings.ToLower(*logLevelFlag)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
