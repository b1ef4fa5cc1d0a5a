package output

import (
	"fmt"
	"io"

	"github.com/jmylchreest/glint/internal/history"
	"github.com/jmylchreest/glint/internal/model"
)

// IDsFormatter outputs just the ids, one per line.
// Useful for piping to other commands (e.g., glintctl dismiss).
type IDsFormatter struct{}

// Live writes notification ids.
func (f *IDsFormatter) Live(w io.Writer, entries []model.ListEntry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.ID); err != nil {
			return err
		}
	}
	return nil
}

// History writes history ULIDs.
func (f *IDsFormatter) History(w io.Writer, entries []history.Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.ID); err != nil {
			return err
		}
	}
	return nil
}

// Status writes the active count.
func (f *IDsFormatter) Status(w io.Writer, st model.Status) error {
	_, err := fmt.Fprintln(w, st.Active)
	return err
}
