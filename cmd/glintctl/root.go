// Package main provides the CLI entrypoint for glintctl.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/dbus"
	"github.com/jmylchreest/glint/internal/output"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// callTimeout bounds each control call.
const callTimeout = 5 * time.Second

// Global configuration and state
var (
	cfg        *config.Config
	globalOpts struct {
		verbose    bool
		configPath string
		format     string
	}
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "glintctl",
	Short: "Control the glintd notification daemon",
	Long: `glintctl talks to a running glintd over the session bus.

It lists and dismisses notifications, toggles do-not-disturb and sound,
queries history, and can watch the daemon live.

Running glintctl without a subcommand lists live notifications.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()

		var err error
		cfg, err = config.LoadConfig(globalOpts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if globalOpts.format == "" {
			globalOpts.format = cfg.Output.Format
		}
		return nil
	},
	RunE: runList,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/glint/glintctl.toml)")
	rootCmd.PersistentFlags().StringVarP(&globalOpts.format, "format", "f", "",
		"Output format (table, json, yaml, ids, dmenu)")
}

func main() {
	Execute()
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// withClient dials the daemon and runs fn with a bounded context.
func withClient(fn func(ctx context.Context, c *dbus.Client) error) error {
	c, err := dbus.Dial()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return fn(ctx, c)
}

// formatter returns the formatter for the selected output format.
func formatter() (output.Formatter, error) {
	format, err := output.ParseFormat(globalOpts.format)
	if err != nil {
		return nil, err
	}
	opts := output.DefaultFormatterOptions()
	if cfg != nil {
		opts.BodyWidth = cfg.Output.BodyWidth
		opts.Template = cfg.Output.DmenuTemplate
	}
	if format == output.FormatDmenu && opts.Template != "" {
		if err := output.CheckTemplate(opts.Template); err != nil {
			return nil, err
		}
	}
	return output.NewFormatter(format, opts), nil
}
