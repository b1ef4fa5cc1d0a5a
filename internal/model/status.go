package model

import "time"

// Status is the daemon state reported over the control interface.
type Status struct {
	Active    int    `json:"active" yaml:"active"`
	Visible   int    `json:"visible" yaml:"visible"`
	Hidden    int    `json:"hidden" yaml:"hidden"`
	Waiting   int    `json:"waiting" yaml:"waiting"`
	Inhibited bool   `json:"inhibited" yaml:"inhibited"`
	Muted     bool   `json:"muted" yaml:"muted"`
	Idle      bool   `json:"idle" yaml:"idle"`
	Surface   string `json:"surface" yaml:"surface"`
	Frames    uint64 `json:"frames" yaml:"frames"`
}

// ListEntry is one live notification in a control-interface snapshot.
type ListEntry struct {
	ID         uint32     `json:"id" yaml:"id"`
	AppName    string     `json:"app_name" yaml:"app_name"`
	Summary    string     `json:"summary" yaml:"summary"`
	Body       string     `json:"body,omitempty" yaml:"body,omitempty"`
	Urgency    string     `json:"urgency" yaml:"urgency"`
	Phase      string     `json:"phase" yaml:"phase"`
	Visible    bool       `json:"visible" yaml:"visible"`
	Selected   bool       `json:"selected,omitempty" yaml:"selected,omitempty"`
	StackCount int        `json:"stack_count" yaml:"stack_count"`
	Actions    []Action   `json:"actions,omitempty" yaml:"actions,omitempty"`
	Progress   int        `json:"progress" yaml:"progress"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}
