package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/glint/internal/dbus"
	"github.com/jmylchreest/glint/internal/model"
	"github.com/jmylchreest/glint/internal/output"
)

var statusOpts struct {
	waybar bool
	follow bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show notification counts and the do-not-disturb and mute state.

With --waybar the status is printed in Waybar's custom module JSON format:

  "custom/notifications": {
    "exec": "glintctl status --waybar --follow",
    "return-type": "json",
    "on-click": "glintctl inhibit toggle"
  }

--follow keeps running and prints a new line on every state change.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&statusOpts.waybar, "waybar", "w", false,
		"Output Waybar custom module JSON")
	statusCmd.Flags().BoolVar(&statusOpts.follow, "follow", false,
		"Print again on every state change")
}

func runStatus(cmd *cobra.Command, args []string) error {
	f, err := formatter()
	if err != nil {
		return err
	}
	write := func(st model.Status) error {
		if statusOpts.waybar {
			return output.WriteWaybar(os.Stdout, st)
		}
		return f.Status(os.Stdout, st)
	}

	if !statusOpts.follow {
		return withClient(func(ctx context.Context, c *dbus.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				if statusOpts.waybar {
					return output.WriteWaybar(os.Stdout, model.Status{})
				}
				return err
			}
			return write(st)
		})
	}

	c, err := dbus.Dial()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, stop := signalContext()
	defer stop()

	states, err := c.WatchState(ctx)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	st, err := c.Status(callCtx)
	cancel()
	if err != nil {
		return err
	}
	if err := write(st); err != nil {
		return err
	}

	for st := range states {
		if err := write(st); err != nil {
			return err
		}
	}
	return nil
}
