// Package history records closed notifications to a JSON lines file.
package history

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/glint/internal/model"
)

// Entry is one closed notification.
type Entry struct {
	ID             string         `json:"id" yaml:"id"`
	NotificationID uint32         `json:"notification_id" yaml:"notification_id"`
	AppName        string         `json:"app_name" yaml:"app_name"`
	Summary        string         `json:"summary" yaml:"summary"`
	Body           string         `json:"body,omitempty" yaml:"body,omitempty"`
	Urgency        int            `json:"urgency" yaml:"urgency"`
	UrgencyName    string         `json:"urgency_name" yaml:"urgency_name"`
	Category       string         `json:"category,omitempty" yaml:"category,omitempty"`
	CreatedAt      int64          `json:"created_at" yaml:"created_at"`
	ClosedAt       int64          `json:"closed_at" yaml:"closed_at"`
	Reason         string         `json:"reason" yaml:"reason"`
	Actions        []model.Action `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// NewEntry builds an entry for a closed notification. The ULID is stamped
// with the close time so entries sort chronologically.
func NewEntry(ev model.ClosedEvent, closedAt time.Time) (Entry, error) {
	id, err := ulid.New(ulid.Timestamp(closedAt), rand.Reader)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to generate ULID: %w", err)
	}

	n := ev.Notification
	return Entry{
		ID:             id.String(),
		NotificationID: ev.ID,
		AppName:        n.AppName,
		Summary:        n.Summary,
		Body:           n.Body,
		Urgency:        int(n.Urgency),
		UrgencyName:    n.Urgency.String(),
		Category:       n.Hints.Category,
		CreatedAt:      n.CreatedAt.Unix(),
		ClosedAt:       closedAt.Unix(),
		Reason:         ev.Reason.String(),
		Actions:        n.Actions,
	}, nil
}

// ClosedTime returns the close timestamp.
func (e Entry) ClosedTime() time.Time {
	return time.Unix(e.ClosedAt, 0)
}

// Valid reports whether the entry was parsed from a well-formed line.
func (e Entry) Valid() bool {
	_, err := ulid.ParseStrict(e.ID)
	return err == nil
}
