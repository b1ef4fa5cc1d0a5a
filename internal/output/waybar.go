package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jmylchreest/glint/internal/model"
)

// WaybarStatus represents the Waybar custom module JSON format.
type WaybarStatus struct {
	Text       string `json:"text"`
	Alt        string `json:"alt,omitempty"`
	Tooltip    string `json:"tooltip,omitempty"`
	Class      string `json:"class,omitempty"`
	Percentage int    `json:"percentage,omitempty"`
}

// NewWaybarStatus builds the Waybar module payload. alt and class are
// "dnd" while inhibited, otherwise "notification" or "empty".
func NewWaybarStatus(st model.Status) WaybarStatus {
	class := "empty"
	if st.Active > 0 {
		class = "notification"
	}
	if st.Inhibited {
		class = "dnd"
	}

	text := ""
	if st.Active > 0 {
		text = fmt.Sprintf("%d", st.Active)
	}

	return WaybarStatus{
		Text:       text,
		Alt:        class,
		Tooltip:    waybarTooltip(st),
		Class:      class,
		Percentage: min(st.Active, 100),
	}
}

func waybarTooltip(st model.Status) string {
	var lines []string
	if st.Visible > 0 {
		lines = append(lines, fmt.Sprintf("Displayed: %d", st.Visible))
	}
	if st.Hidden > 0 {
		lines = append(lines, fmt.Sprintf("Hidden: %d", st.Hidden))
	}
	if st.Waiting > 0 {
		lines = append(lines, fmt.Sprintf("Waiting: %d", st.Waiting))
	}
	if st.Inhibited {
		lines = append(lines, "Do not disturb")
	}
	if st.Muted {
		lines = append(lines, "Muted")
	}
	if len(lines) == 0 {
		return "No notifications"
	}
	return strings.Join(lines, "\n")
}

// WriteWaybar writes the status as one line of Waybar JSON.
func WriteWaybar(w io.Writer, st model.Status) error {
	return json.NewEncoder(w).Encode(NewWaybarStatus(st))
}
