package main

import (
	"context"
	"fmt"
	"strings"

	godbus "github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/glint/internal/dbus"
	"github.com/jmylchreest/glint/internal/query"
)

var notifyOpts struct {
	appName   string
	icon      string
	urgency   string
	timeout   int32
	replaces  uint32
	actions   []string
	category  string
	stackTag  string
	soundFile string
	soundName string
	progress  int
	transient bool
	resident  bool
}

var notifyCmd = &cobra.Command{
	Use:   "notify <summary> [body]",
	Short: "Send a notification",
	Long: `Send a notification through the standard notification interface.

Actions are given as key=label pairs; the id of the new notification is
printed:

  glintctl notify -a mail --action default=Open "New mail" "From: alice"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runNotify,
}

func init() {
	rootCmd.AddCommand(notifyCmd)

	f := notifyCmd.Flags()
	f.StringVarP(&notifyOpts.appName, "app", "a", "glintctl", "Application name")
	f.StringVarP(&notifyOpts.icon, "icon", "i", "", "Icon name or path")
	f.StringVarP(&notifyOpts.urgency, "urgency", "u", "normal", "Urgency (low, normal, critical)")
	f.Int32VarP(&notifyOpts.timeout, "timeout", "t", -1, "Expiry in milliseconds (-1 server default, 0 never)")
	f.Uint32VarP(&notifyOpts.replaces, "replaces", "r", 0, "Id of a notification to replace")
	f.StringArrayVar(&notifyOpts.actions, "action", nil, "Action as key=label (repeatable)")
	f.StringVar(&notifyOpts.category, "category", "", "Category hint")
	f.StringVar(&notifyOpts.stackTag, "stack-tag", "", "Stack tag; notifications with the same tag replace each other")
	f.StringVar(&notifyOpts.soundFile, "sound-file", "", "Sound file to play")
	f.StringVar(&notifyOpts.soundName, "sound-name", "", "Themed sound name")
	f.IntVar(&notifyOpts.progress, "progress", -1, "Progress value 0-100")
	f.BoolVar(&notifyOpts.transient, "transient", false, "Do not record in history")
	f.BoolVar(&notifyOpts.resident, "resident", false, "Keep after an action is invoked")
}

func buildNotification(args []string) (*dbus.DBusNotification, error) {
	urgency, err := query.ParseUrgency(notifyOpts.urgency)
	if err != nil {
		return nil, err
	}

	n := &dbus.DBusNotification{
		AppName:       notifyOpts.appName,
		ReplacesID:    notifyOpts.replaces,
		AppIcon:       notifyOpts.icon,
		Summary:       args[0],
		ExpireTimeout: notifyOpts.timeout,
		Actions:       []string{},
		Hints: map[string]godbus.Variant{
			"urgency": godbus.MakeVariant(byte(urgency)),
		},
	}
	if len(args) == 2 {
		n.Body = args[1]
	}

	for _, a := range notifyOpts.actions {
		key, label, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid action %q (want key=label)", a)
		}
		n.Actions = append(n.Actions, key, label)
	}

	strHints := map[string]string{
		"category":          notifyOpts.category,
		"x-dunst-stack-tag": notifyOpts.stackTag,
		"sound-file":        notifyOpts.soundFile,
		"sound-name":        notifyOpts.soundName,
	}
	for k, v := range strHints {
		if v != "" {
			n.Hints[k] = godbus.MakeVariant(v)
		}
	}
	if notifyOpts.progress >= 0 {
		n.Hints["value"] = godbus.MakeVariant(int32(min(notifyOpts.progress, 100)))
	}
	if notifyOpts.transient {
		n.Hints["transient"] = godbus.MakeVariant(true)
	}
	if notifyOpts.resident {
		n.Hints["resident"] = godbus.MakeVariant(true)
	}
	return n, nil
}

func runNotify(cmd *cobra.Command, args []string) error {
	n, err := buildNotification(args)
	if err != nil {
		return err
	}
	return withClient(func(ctx context.Context, c *dbus.Client) error {
		id, err := c.Notify(ctx, n)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	})
}
