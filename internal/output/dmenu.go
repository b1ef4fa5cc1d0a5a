package output

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/jmylchreest/glint/internal/history"
	"github.com/jmylchreest/glint/internal/model"
)

// dmenuSeparator joins line fields. The id always comes first so a picked
// line can be cut back to it.
const dmenuSeparator = " | "

// DmenuFormatter writes one line per notification for dmenu, rofi or fuzzel.
type DmenuFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// dmenuLine is the data passed to a custom line template.
type dmenuLine struct {
	Index   int
	ID      string
	App     string
	Summary string
	Body    string
	Urgency string
	Age     string
}

// NewDmenuFormatter creates a dmenu formatter. An invalid template falls
// back to the default line; use CheckTemplate to report it.
func NewDmenuFormatter(opts FormatterOptions) *DmenuFormatter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	f := &DmenuFormatter{opts: opts}
	if opts.Template != "" {
		if tmpl, err := parseTemplate(opts.Template); err == nil {
			f.template = tmpl
		}
	}
	return f
}

// CheckTemplate reports whether s parses as a dmenu line template.
func CheckTemplate(s string) error {
	_, err := parseTemplate(s)
	return err
}

func parseTemplate(s string) (*template.Template, error) {
	tmpl, err := template.New("dmenu").Funcs(templateFuncs()).Parse(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dmenu template: %w", err)
	}
	return tmpl, nil
}

// Live writes live notifications.
func (f *DmenuFormatter) Live(w io.Writer, entries []model.ListEntry) error {
	now := f.opts.Now()
	for i, e := range entries {
		line := dmenuLine{
			Index:   i + 1,
			ID:      fmt.Sprint(e.ID),
			App:     e.AppName,
			Summary: e.Summary,
			Body:    e.Body,
			Urgency: e.Urgency,
			Age:     compactAge(now.Sub(e.CreatedAt)),
		}
		if err := f.write(w, line); err != nil {
			return err
		}
	}
	return nil
}

// History writes closed notifications.
func (f *DmenuFormatter) History(w io.Writer, entries []history.Entry) error {
	now := f.opts.Now()
	for i, e := range entries {
		line := dmenuLine{
			Index:   i + 1,
			ID:      e.ID,
			App:     e.AppName,
			Summary: e.Summary,
			Body:    e.Body,
			Urgency: e.UrgencyName,
			Age:     compactAge(now.Sub(e.ClosedTime())),
		}
		if err := f.write(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Status writes a single summary line.
func (f *DmenuFormatter) Status(w io.Writer, st model.Status) error {
	line := fmt.Sprintf("%d active%s%d visible", st.Active, dmenuSeparator, st.Visible)
	if st.Inhibited {
		line += dmenuSeparator + "dnd"
	}
	if st.Muted {
		line += dmenuSeparator + "muted"
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func (f *DmenuFormatter) write(w io.Writer, line dmenuLine) error {
	if f.template != nil {
		var buf strings.Builder
		if err := f.template.Execute(&buf, line); err != nil {
			return fmt.Errorf("failed to render dmenu line: %w", err)
		}
		_, err := fmt.Fprintln(w, buf.String())
		return err
	}

	parts := []string{line.ID, line.Age}
	if line.App != "" {
		parts = append(parts, line.App)
	}
	content := line.Summary
	if body := truncate(line.Body, f.opts.BodyWidth); body != "" {
		content += ": " + body
	}
	parts = append(parts, content)

	_, err := fmt.Fprintln(w, strings.Join(parts, dmenuSeparator))
	return err
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"truncate": truncate,
		"urgencyIcon": func(urgency string) string {
			switch urgency {
			case "low":
				return "L"
			case "critical":
				return "!"
			default:
				return "-"
			}
		},
	}
}

// compactAge renders d as now, 5m, 3h, 2d or 1w.
func compactAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw", int(d.Hours()/24/7))
	}
}
