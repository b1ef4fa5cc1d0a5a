package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/glint/internal/history"
	"github.com/jmylchreest/glint/internal/model"
)

// JSONFormatter writes indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// Live writes entries as a JSON array.
func (f *JSONFormatter) Live(w io.Writer, entries []model.ListEntry) error {
	if entries == nil {
		entries = []model.ListEntry{}
	}
	return f.encode(w, entries)
}

// History writes entries as a JSON array.
func (f *JSONFormatter) History(w io.Writer, entries []history.Entry) error {
	if entries == nil {
		entries = []history.Entry{}
	}
	return f.encode(w, entries)
}

// Status writes the status object.
func (f *JSONFormatter) Status(w io.Writer, st model.Status) error {
	return f.encode(w, st)
}

// YAMLFormatter writes YAML documents.
type YAMLFormatter struct{}

func (f *YAMLFormatter) encode(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

// Live writes entries as a YAML sequence.
func (f *YAMLFormatter) Live(w io.Writer, entries []model.ListEntry) error {
	if entries == nil {
		entries = []model.ListEntry{}
	}
	return f.encode(w, entries)
}

// History writes entries as a YAML sequence.
func (f *YAMLFormatter) History(w io.Writer, entries []history.Entry) error {
	if entries == nil {
		entries = []history.Entry{}
	}
	return f.encode(w, entries)
}

// Status writes the status mapping.
func (f *YAMLFormatter) Status(w io.Writer, st model.Status) error {
	return f.encode(w, st)
}
