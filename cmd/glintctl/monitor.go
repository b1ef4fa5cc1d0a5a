package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/glint/internal/dbus"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Trace notification traffic on the session bus",
	Long: `Print Notify calls, NotificationClosed and ActionInvoked signals as
they cross the session bus, whichever daemon serves them.

Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	out := cmd.OutOrStdout()
	m := dbus.NewMonitor(logger)
	if err := m.Start(func(ev dbus.MonitorEvent) {
		writeMonitorEvent(out, time.Now(), ev)
	}); err != nil {
		return err
	}
	defer func() { _ = m.Stop() }()

	fmt.Fprintln(cmd.ErrOrStderr(), "Monitoring notifications... (Ctrl+C to stop)")
	<-ctx.Done()
	return nil
}

func writeMonitorEvent(w io.Writer, at time.Time, ev dbus.MonitorEvent) {
	ts := at.Format("15:04:05")
	switch ev.Kind {
	case dbus.MonitorNotify:
		n := ev.Notification
		h := n.ParsedHints()
		line := fmt.Sprintf("%s notify   app=%q summary=%q urgency=%s", ts, n.AppName, n.Summary, h.Urgency)
		if n.ReplacesID != 0 {
			line += fmt.Sprintf(" replaces=%d", n.ReplacesID)
		}
		if acts := n.ParsedActions(); len(acts) > 0 {
			keys := make([]string, len(acts))
			for i, a := range acts {
				keys[i] = a.Key
			}
			line += " actions=" + strings.Join(keys, ",")
		}
		fmt.Fprintln(w, line)
	case dbus.MonitorClosed:
		fmt.Fprintf(w, "%s closed   id=%d reason=%s\n", ts, ev.ID, ev.Reason)
	case dbus.MonitorAction:
		fmt.Fprintf(w, "%s action   id=%d key=%q\n", ts, ev.ID, ev.ActionKey)
	}
}
