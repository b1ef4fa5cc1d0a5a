// Package output formats daemon snapshots for glintctl.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmylchreest/glint/internal/history"
	"github.com/jmylchreest/glint/internal/model"
)

// Formatter writes control-interface results.
type Formatter interface {
	// Live writes the live notifications.
	Live(w io.Writer, entries []model.ListEntry) error
	// History writes closed notifications.
	History(w io.Writer, entries []history.Entry) error
	// Status writes the daemon status.
	Status(w io.Writer, st model.Status) error
}

// FormatType represents an output format type.
type FormatType string

const (
	FormatTable FormatType = "table"
	FormatJSON  FormatType = "json"
	FormatYAML  FormatType = "yaml"
	FormatIDs   FormatType = "ids"
	FormatDmenu FormatType = "dmenu"
)

// FormatterOptions configures formatter behavior.
type FormatterOptions struct {
	BodyWidth int              // Body column truncation, 0 hides the column
	Now       func() time.Time // Reference time for ages
	Template  string           // Custom dmenu line template
}

// DefaultFormatterOptions returns the defaults used by glintctl.
func DefaultFormatterOptions() FormatterOptions {
	return FormatterOptions{
		BodyWidth: 50,
		Now:       time.Now,
	}
}

// ParseFormat validates a format name.
func ParseFormat(name string) (FormatType, error) {
	switch f := FormatType(strings.ToLower(name)); f {
	case FormatTable, FormatJSON, FormatYAML, FormatIDs, FormatDmenu:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q, must be one of: table, json, yaml, ids, dmenu", name)
	}
}

// NewFormatter creates a formatter for the specified format type.
func NewFormatter(format FormatType, opts FormatterOptions) Formatter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	switch format {
	case FormatJSON:
		return &JSONFormatter{}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatIDs:
		return &IDsFormatter{}
	case FormatDmenu:
		return NewDmenuFormatter(opts)
	default:
		return &TableFormatter{opts: opts}
	}
}

// truncate shortens s to width runes and flattens newlines.
func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}
