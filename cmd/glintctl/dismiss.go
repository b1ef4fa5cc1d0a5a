package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/glint/internal/dbus"
	"github.com/jmylchreest/glint/internal/model"
)

var dismissOpts struct {
	all bool
}

var dismissCmd = &cobra.Command{
	Use:   "dismiss [id...]",
	Short: "Dismiss notifications",
	Long: `Dismiss notifications by id, as if the user closed them.

Use --all to dismiss everything. Ids can be piped from list:

  glintctl list -f ids | head -1 | xargs glintctl dismiss`,
	RunE: runDismiss,
}

var invokeCmd = &cobra.Command{
	Use:   "invoke <id> [action-key]",
	Short: "Invoke an action on a notification",
	Long: `Invoke an action on a notification. Without an action key the
"default" action is invoked.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInvoke,
}

func init() {
	rootCmd.AddCommand(dismissCmd)
	rootCmd.AddCommand(invokeCmd)

	dismissCmd.Flags().BoolVarP(&dismissOpts.all, "all", "a", false,
		"Dismiss all notifications")
}

func parseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid notification id %q", s)
	}
	return uint32(id), nil
}

func runDismiss(cmd *cobra.Command, args []string) error {
	if dismissOpts.all == (len(args) > 0) {
		return fmt.Errorf("specify notification ids or --all")
	}

	ids := make([]uint32, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	return withClient(func(ctx context.Context, c *dbus.Client) error {
		if dismissOpts.all {
			n, err := c.DismissAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dismissed %d notifications\n", n)
			return nil
		}
		for _, id := range ids {
			if err := c.Dismiss(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func runInvoke(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	key := model.DefaultActionKey
	if len(args) == 2 {
		key = args[1]
	}
	return withClient(func(ctx context.Context, c *dbus.Client) error {
		return c.InvokeAction(ctx, id, key)
	})
}
