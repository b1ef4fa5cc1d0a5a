package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/glint/internal/dbus"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List live notifications",
	Long: `List the notifications glintd currently holds, in display order.

Hidden notifications (beyond max_visible, or held while do-not-disturb is
on) are included and marked as hidden.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	f, err := formatter()
	if err != nil {
		return err
	}
	return withClient(func(ctx context.Context, c *dbus.Client) error {
		entries, err := c.List(ctx)
		if err != nil {
			return err
		}
		return f.Live(os.Stdout, entries)
	})
}
