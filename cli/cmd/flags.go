// Package cmd provides CLI commands for the ipcpipe binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ipcpipe/cli/config"
	"github.com/pithecene-io/ipcpipe/log"
	"github.com/pithecene-io/ipcpipe/peer"
)

// Shared flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// ConfigFlag points at an ipcpipe.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: ./" + config.DefaultPath + " when present)",
		EnvVars: []string{"IPCPIPE_CONFIG"},
	}

	// LogLevelFlag overrides log_level from the config file.
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level: debug, info, warn, error",
		EnvVars: []string{"IPCPIPE_LOG_LEVEL"},
	}
)

// ReadOnlyFlags returns the shared flags for commands that only read.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{FormatFlag}
}

// usageError exits with the usage code.
func usageError(format string, args ...any) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(format, args...), peer.ExitCodeUsage)
}

// loadConfig loads --config, or the default file when present.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadDefault(c.String("config"))
	if err != nil {
		return nil, usageError("%v", err)
	}
	return cfg, nil
}

// newLogger creates a stderr logger for endpoint. --log-level wins over
// the config file.
func newLogger(c *cli.Context, cfg *config.Config, endpoint string) (*log.Logger, error) {
	levelName := cfg.LogLevel
	if c.IsSet("log-level") {
		levelName = c.String("log-level")
	}
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return nil, usageError("%v", err)
	}
	logger := log.NewLogger(log.Identity{Endpoint: endpoint, PID: os.Getpid()})
	logger.SetLevel(level)
	return logger, nil
}

// levelName returns the effective level for passing on to a child.
func levelName(c *cli.Context, cfg *config.Config) string {
	if c.IsSet("log-level") {
		return c.String("log-level")
	}
	if cfg.LogLevel != "" {
		return cfg.LogLevel
	}
	return "info"
}
