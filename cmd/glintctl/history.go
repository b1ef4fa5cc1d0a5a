package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/glint/internal/dbus"
	"github.com/jmylchreest/glint/internal/history"
	"github.com/jmylchreest/glint/internal/query"
)

var historyOpts struct {
	limit   int
	clear   bool
	since   string
	app     string
	urgency string
	filter  string
	search  string
	sort    string
	order   string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show closed notifications",
	Long: `Show recently closed notifications, newest first.

Transient notifications are never recorded. Use --clear to discard the
recorded history.

Filter expressions are comma-separated conditions that must all match:

  Fields:    app, summary, body, category, reason, urgency, closed
  Operators: = != ~ (contains) ~= (regex) > < >= <=

Examples:
  glintctl history --since 1d --app discord
  glintctl history --filter "urgency>=normal,reason=expired"
  glintctl history --filter "closed>1h" --sort app --order asc`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the daemon configuration",
	Long: `Ask glintd to re-read its configuration file.

glintd also reloads on its own when the file changes. An invalid file is
reported and the previous configuration stays in effect.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *dbus.Client) error {
			return c.Reload(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(reloadCmd)

	f := historyCmd.Flags()
	f.IntVarP(&historyOpts.limit, "limit", "n", 0, "Maximum entries to show (default from config)")
	f.BoolVar(&historyOpts.clear, "clear", false, "Discard recorded history")
	f.StringVar(&historyOpts.since, "since", "", "Only entries closed within this duration (e.g. 1h, 7d, 2w)")
	f.StringVar(&historyOpts.app, "app", "", "Only entries from this app")
	f.StringVar(&historyOpts.urgency, "urgency", "", "Only entries of this urgency (low, normal, critical)")
	f.StringVar(&historyOpts.filter, "filter", "", "Filter expression")
	f.StringVarP(&historyOpts.search, "search", "s", "", "Search summary and body")
	f.StringVar(&historyOpts.sort, "sort", "closed", "Sort field (closed, created, app, urgency)")
	f.StringVar(&historyOpts.order, "order", "desc", "Sort order (asc, desc)")

	_ = historyCmd.RegisterFlagCompletionFunc("app", completeApps)
}

// historyQuery holds the parsed client-side query.
type historyQuery struct {
	opts   query.Options
	expr   *query.Expr
	search string
	sort   query.SortOptions
}

func parseHistoryQuery(now time.Time) (historyQuery, error) {
	var q historyQuery

	since, err := query.ParseDuration(historyOpts.since)
	if err != nil {
		return q, err
	}
	q.opts.Since = since
	q.opts.App = historyOpts.app
	if historyOpts.urgency != "" {
		u, err := query.ParseUrgency(historyOpts.urgency)
		if err != nil {
			return q, err
		}
		q.opts.Urgency = &u
	}

	if q.expr, err = query.ParseFilter(historyOpts.filter, now); err != nil {
		return q, err
	}
	if q.sort.Field, err = query.ParseSortField(historyOpts.sort); err != nil {
		return q, err
	}
	if q.sort.Order, err = query.ParseSortOrder(historyOpts.order); err != nil {
		return q, err
	}
	q.search = historyOpts.search
	return q, nil
}

// apply filters, searches, sorts and limits entries.
func (q historyQuery) apply(entries []history.Entry, limit int, now time.Time) []history.Entry {
	entries = query.Filter(entries, q.opts, now)
	entries = query.Apply(entries, q.expr)
	entries = query.Search(entries, q.search)
	query.Sort(entries, q.sort)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyOpts.clear {
		return withClient(func(ctx context.Context, c *dbus.Client) error {
			if err := c.ClearHistory(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
			return nil
		})
	}

	f, err := formatter()
	if err != nil {
		return err
	}
	now := time.Now()
	q, err := parseHistoryQuery(now)
	if err != nil {
		return err
	}
	limit := historyOpts.limit
	if limit <= 0 && cfg != nil {
		limit = cfg.History.Limit
	}

	return withClient(func(ctx context.Context, c *dbus.Client) error {
		// Filtering happens here, so fetch everything the daemon kept.
		entries, err := c.History(ctx, 0)
		if err != nil {
			return err
		}
		return f.History(os.Stdout, q.apply(entries, limit, now))
	})
}

func completeApps(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var apps []string
	_ = withClient(func(ctx context.Context, c *dbus.Client) error {
		entries, err := c.History(ctx, 0)
		if err != nil {
			return err
		}
		apps = query.UniqueApps(entries)
		return nil
	})
	return apps, cobra.ShellCompDirectiveNoFileComp
}
