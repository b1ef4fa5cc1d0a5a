package main

import (
	"github.com/spf13/cobra"

	"github.com/jmylchreest/glint/internal/dbus"
	"github.com/jmylchreest/glint/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"tui"},
	Short:   "Watch notifications interactively",
	Long: `Open an interactive view of live notifications.

The view refreshes every second and on every daemon state change. From it
you can dismiss notifications, invoke actions, toggle do-not-disturb and
mute, and copy a notification to the clipboard.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	return tui.Run(tui.RunOptions{
		Config: cfg,
		Source: c,
		States: states,
	})
}
