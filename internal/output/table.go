package output

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/glint/internal/history"
	"github.com/jmylchreest/glint/internal/model"
)

// TableFormatter writes aligned columns.
type TableFormatter struct {
	opts FormatterOptions
}

func (f *TableFormatter) write(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingRight(2)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			return s
		}).
		Headers(headers...).
		Rows(rows...)
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// Live writes one row per notification.
func (f *TableFormatter) Live(w io.Writer, entries []model.ListEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No notifications")
		return err
	}

	now := f.opts.Now()
	headers := []string{"ID", "APP", "URGENCY", "STATE", "AGE", "EXPIRES", "SUMMARY"}
	if f.opts.BodyWidth > 0 {
		headers = append(headers, "BODY")
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		summary := e.Summary
		if e.StackCount > 1 {
			summary = fmt.Sprintf("%s (x%d)", summary, e.StackCount)
		}
		state := e.Phase
		if !e.Visible {
			state = "hidden"
		}
		row := []string{
			strconv.FormatUint(uint64(e.ID), 10),
			e.AppName,
			e.Urgency,
			state,
			humanize.RelTime(e.CreatedAt, now, "ago", "from now"),
			expiresIn(e.ExpiresAt, now),
			summary,
		}
		if f.opts.BodyWidth > 0 {
			row = append(row, truncate(e.Body, f.opts.BodyWidth))
		}
		rows = append(rows, row)
	}
	return f.write(w, headers, rows)
}

// History writes one row per closed notification, newest first.
func (f *TableFormatter) History(w io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No history")
		return err
	}

	now := f.opts.Now()
	headers := []string{"CLOSED", "APP", "URGENCY", "REASON", "SUMMARY"}
	if f.opts.BodyWidth > 0 {
		headers = append(headers, "BODY")
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		row := []string{
			humanize.RelTime(e.ClosedTime(), now, "ago", "from now"),
			e.AppName,
			e.UrgencyName,
			e.Reason,
			e.Summary,
		}
		if f.opts.BodyWidth > 0 {
			row = append(row, truncate(e.Body, f.opts.BodyWidth))
		}
		rows = append(rows, row)
	}
	return f.write(w, headers, rows)
}

// Status writes key/value lines.
func (f *TableFormatter) Status(w io.Writer, st model.Status) error {
	_, err := fmt.Fprintf(w,
		"active:     %d\nvisible:    %d\nhidden:     %d\nwaiting:    %d\ninhibited:  %s\nmuted:      %s\nsurface:    %s\nframes:     %s\n",
		st.Active, st.Visible, st.Hidden, st.Waiting,
		onOff(st.Inhibited), onOff(st.Muted), st.Surface, humanize.Comma(int64(st.Frames)))
	return err
}

func expiresIn(at *time.Time, now time.Time) string {
	if at == nil {
		return "never"
	}
	return max(at.Sub(now), 0).Round(time.Second).String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
