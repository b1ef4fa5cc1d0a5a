package query

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/jmylchreest/glint/internal/history"
)

// SortField is a field to sort by.
type SortField string

const (
	SortByClosed  SortField = "closed"
	SortByCreated SortField = "created"
	SortByApp     SortField = "app"
	SortByUrgency SortField = "urgency"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortOptions specifies sorting criteria.
type SortOptions struct {
	Field SortField
	Order SortOrder
}

// DefaultSortOptions sorts newest closed first.
func DefaultSortOptions() SortOptions {
	return SortOptions{Field: SortByClosed, Order: SortDesc}
}

// Sort sorts entries in place. Ties keep their existing order.
func Sort(entries []history.Entry, opts SortOptions) {
	slices.SortStableFunc(entries, func(a, b history.Entry) int {
		var c int
		switch opts.Field {
		case SortByCreated:
			c = cmp.Compare(a.CreatedAt, b.CreatedAt)
		case SortByApp:
			c = cmp.Compare(strings.ToLower(a.AppName), strings.ToLower(b.AppName))
		case SortByUrgency:
			c = cmp.Compare(a.Urgency, b.Urgency)
		default:
			c = cmp.Compare(a.ClosedAt, b.ClosedAt)
		}
		if opts.Order == SortDesc {
			return -c
		}
		return c
	})
}

// ParseSortField parses a sort field name.
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "closed", "time", "t", "":
		return SortByClosed, nil
	case "created", "c":
		return SortByCreated, nil
	case "app", "appname", "a":
		return SortByApp, nil
	case "urgency", "u":
		return SortByUrgency, nil
	default:
		return "", fmt.Errorf("invalid sort field: %s (use closed, created, app, or urgency)", s)
	}
}

// ParseSortOrder parses a sort order.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desc", "descending", "d", "":
		return SortDesc, nil
	case "asc", "ascending", "a":
		return SortAsc, nil
	default:
		return "", fmt.Errorf("invalid sort order: %s (use asc or desc)", s)
	}
}
