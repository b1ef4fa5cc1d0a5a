// Package main is the entry point for the glintd notification daemon.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/render"
)

const (
	appID   = "io.github.jmylchreest.glintd"
	appName = "glintd"
)

// Exit statuses.
const (
	exitFailure      = 1
	exitSurfaceFatal = 3
)

var (
	// Build-time variables
	version = "dev"
)

type options struct {
	configPath string
	logLevel   string
	headless   bool
	metrics    string
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Desktop notification daemon",
		Long:          "glintd implements org.freedesktop.Notifications and draws popups on a layer-shell surface.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	rootCmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/glint/glintd.toml)")
	rootCmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.Flags().BoolVar(&opts.headless, "headless", false, "render into memory instead of a layer-shell window")
	rootCmd.Flags().StringVar(&opts.metrics, "metrics-listen", "", "serve Prometheus metrics on this address (overrides config)")

	rootCmd.AddCommand(newCheckCmd(&opts))

	if err := rootCmd.Execute(); err != nil {
		slog.Error("glintd failed", "error", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, render.ErrSurfaceFatal) {
		return exitSurfaceFatal
	}
	return exitFailure
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = config.DaemonConfigPath()
			}
			if _, err := config.LoadDaemonConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			return nil
		},
	}
}

// newLogger builds the process logger. flagLevel wins over cfgLevel.
func newLogger(flagLevel, cfgLevel string) *slog.Logger {
	level := slog.LevelInfo
	name := flagLevel
	if name == "" {
		name = cfgLevel
	}
	if name != "" {
		if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
			level = slog.LevelInfo
		}
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
