package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/glint/internal/dbus"
	"github.com/jmylchreest/glint/internal/model"
)

// toggle describes one boolean daemon switch.
type toggle struct {
	name string
	get  func(model.Status) bool
	set  func(ctx context.Context, c *dbus.Client, on bool) (model.Status, error)
}

var inhibitToggle = toggle{
	name: "do-not-disturb",
	get:  func(st model.Status) bool { return st.Inhibited },
	set: func(ctx context.Context, c *dbus.Client, on bool) (model.Status, error) {
		return c.SetInhibited(ctx, on)
	},
}

var muteToggle = toggle{
	name: "mute",
	get:  func(st model.Status) bool { return st.Muted },
	set: func(ctx context.Context, c *dbus.Client, on bool) (model.Status, error) {
		return c.SetMuted(ctx, on)
	},
}

var inhibitCmd = &cobra.Command{
	Use:     "inhibit [on|off|toggle|state]",
	Aliases: []string{"dnd"},
	Short:   "Control do-not-disturb mode",
	Long: `Control do-not-disturb mode.

While inhibited, new notifications are held and not shown. Critical
notifications still appear. Held notifications are shown when the mode is
turned off again, unless they expired in the meantime.

Without an argument the current state is printed.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"on", "off", "toggle", "state"},
	RunE:      toggleRunner(inhibitToggle),
}

var muteCmd = &cobra.Command{
	Use:   "mute [on|off|toggle|state]",
	Short: "Control notification sounds",
	Long: `Control notification sounds.

Without an argument the current state is printed.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"on", "off", "toggle", "state"},
	RunE:      toggleRunner(muteToggle),
}

func init() {
	rootCmd.AddCommand(inhibitCmd)
	rootCmd.AddCommand(muteCmd)
}

func toggleRunner(t toggle) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		action := "state"
		if len(args) == 1 {
			action = args[0]
		}

		return withClient(func(ctx context.Context, c *dbus.Client) error {
			var (
				st  model.Status
				err error
			)
			switch action {
			case "on", "enable":
				st, err = t.set(ctx, c, true)
			case "off", "disable":
				st, err = t.set(ctx, c, false)
			case "toggle":
				st, err = c.Status(ctx)
				if err == nil {
					st, err = t.set(ctx, c, !t.get(st))
				}
			case "state", "status":
				st, err = c.Status(ctx)
			default:
				return fmt.Errorf("unknown action %q (use on, off, toggle, or state)", action)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", t.name, onOff(t.get(st)))
			return nil
		})
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
