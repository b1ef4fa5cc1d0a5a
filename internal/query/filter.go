// Package query filters, sorts and searches notification history entries.
package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/glint/internal/history"
	"github.com/jmylchreest/glint/internal/model"
)

// Op is a comparison operator.
type Op string

const (
	OpEqual     Op = "="  // Exact match
	OpNotEqual  Op = "!=" // Not equal
	OpContains  Op = "~"  // Contains substring
	OpRegex     Op = "~=" // Regex match
	OpGreater   Op = ">"  // Greater than
	OpLess      Op = "<"  // Less than
	OpGreaterEq Op = ">=" // Greater than or equal
	OpLessEq    Op = "<=" // Less than or equal
)

// Condition is a single filter condition.
type Condition struct {
	Field    string // app, summary, body, category, reason, urgency, closed
	Operator Op
	Value    string

	regex   *regexp.Regexp
	urgency model.Urgency
	cutoff  time.Time
}

// Expr is a compound filter expression. Conditions are ANDed.
type Expr struct {
	Conditions []Condition
}

// Options are the simple flag-driven filters.
type Options struct {
	Since   time.Duration  // Only entries closed after now-since (0=all)
	App     string         // Exact match on app name
	Urgency *model.Urgency // nil=any
	Limit   int            // 0=unlimited
}

// Filter applies opts to entries. now anchors Since.
func Filter(entries []history.Entry, opts Options, now time.Time) []history.Entry {
	result := make([]history.Entry, 0, len(entries))
	cutoff := now.Add(-opts.Since)

	for _, e := range entries {
		if opts.Since > 0 && e.ClosedTime().Before(cutoff) {
			continue
		}
		if opts.App != "" && e.AppName != opts.App {
			continue
		}
		if opts.Urgency != nil && model.Urgency(e.Urgency) != *opts.Urgency {
			continue
		}
		result = append(result, e)
	}

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result
}

// ParseDuration parses a duration with day and week suffixes.
// Supports: 48h, 7d, 1w, 0 (all time)
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "0" || s == "" {
		return 0, nil
	}

	if days, found := strings.CutSuffix(s, "d"); found {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	if weeks, found := strings.CutSuffix(s, "w"); found {
		n, err := strconv.Atoi(weeks)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}

	return time.ParseDuration(s)
}

// ParseUrgency accepts low, normal, critical, 0, 1 or 2.
func ParseUrgency(s string) (model.Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "0":
		return model.UrgencyLow, nil
	case "normal", "1":
		return model.UrgencyNormal, nil
	case "critical", "2":
		return model.UrgencyCritical, nil
	default:
		return 0, fmt.Errorf("invalid urgency: %s (use low, normal, or critical)", s)
	}
}

// ParseFilter parses "field=value,field2~value2" into an Expr. Relative
// times in closed conditions are resolved against now.
//
// Fields: app, summary, body, category, reason, urgency, closed
// Operators: = != ~ ~= > < >= <=
//
// Examples:
//   - "app=discord"
//   - "summary~error"
//   - "urgency>=normal"
//   - "reason=expired,closed>1h"
//   - "body~=(?i)meeting"
func ParseFilter(expr string, now time.Time) (*Expr, error) {
	f := &Expr{}
	for part := range strings.SplitSeq(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cond, err := parseCondition(part, now)
		if err != nil {
			return nil, err
		}
		f.Conditions = append(f.Conditions, cond)
	}
	return f, nil
}

// Longest operators first so "!=" is not read as "=".
var operators = []Op{
	OpNotEqual,
	OpGreaterEq,
	OpLessEq,
	OpRegex,
	OpEqual,
	OpContains,
	OpGreater,
	OpLess,
}

func parseCondition(s string, now time.Time) (Condition, error) {
	for _, op := range operators {
		idx := strings.Index(s, string(op))
		if idx <= 0 {
			continue
		}
		cond := Condition{
			Field:    strings.ToLower(strings.TrimSpace(s[:idx])),
			Operator: op,
			Value:    strings.TrimSpace(s[idx+len(op):]),
		}
		if err := cond.init(now); err != nil {
			return Condition{}, err
		}
		return cond, nil
	}
	return Condition{}, fmt.Errorf("invalid filter condition: %s (missing operator)", s)
}

func (c *Condition) init(now time.Time) error {
	switch c.Field {
	case "app", "app_name", "appname":
		c.Field = "app"
	case "summary", "title":
		c.Field = "summary"
	case "body", "message":
		c.Field = "body"
	case "category", "cat":
		c.Field = "category"
	case "reason":
	case "urgency", "priority":
		c.Field = "urgency"
		u, err := ParseUrgency(c.Value)
		if err != nil {
			return err
		}
		c.urgency = u
	case "closed", "time", "ts":
		c.Field = "closed"
		d, err := ParseDuration(c.Value)
		if err != nil {
			return fmt.Errorf("invalid time value: %w", err)
		}
		c.cutoff = now.Add(-d)
	default:
		return fmt.Errorf("unknown filter field: %s", c.Field)
	}

	if c.Operator == OpRegex {
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return fmt.Errorf("invalid regex: %w", err)
		}
		c.regex = re
	}
	return nil
}

// Match reports whether e satisfies every condition.
func (f *Expr) Match(e history.Entry) bool {
	for _, c := range f.Conditions {
		if !c.Match(e) {
			return false
		}
	}
	return true
}

// Match reports whether e satisfies the condition.
func (c *Condition) Match(e history.Entry) bool {
	switch c.Field {
	case "app":
		return c.matchString(e.AppName)
	case "summary":
		return c.matchString(e.Summary)
	case "body":
		return c.matchString(e.Body)
	case "category":
		return c.matchString(e.Category)
	case "reason":
		return c.matchString(e.Reason)
	case "urgency":
		return c.matchOrdered(e.Urgency, int(c.urgency))
	case "closed":
		// "closed>1h" reads as "closed within the last hour".
		return c.matchOrdered(int(e.ClosedAt), int(c.cutoff.Unix()))
	default:
		return false
	}
}

func (c *Condition) matchString(v string) bool {
	switch c.Operator {
	case OpEqual:
		return v == c.Value
	case OpNotEqual:
		return v != c.Value
	case OpContains:
		return strings.Contains(strings.ToLower(v), strings.ToLower(c.Value))
	case OpRegex:
		return c.regex != nil && c.regex.MatchString(v)
	default:
		return false
	}
}

func (c *Condition) matchOrdered(v, want int) bool {
	switch c.Operator {
	case OpEqual:
		return v == want
	case OpNotEqual:
		return v != want
	case OpGreater:
		return v > want
	case OpLess:
		return v < want
	case OpGreaterEq:
		return v >= want
	case OpLessEq:
		return v <= want
	default:
		return false
	}
}

// Apply returns the entries matching expr.
func Apply(entries []history.Entry, expr *Expr) []history.Entry {
	if expr == nil || len(expr.Conditions) == 0 {
		return entries
	}
	result := make([]history.Entry, 0, len(entries))
	for _, e := range entries {
		if expr.Match(e) {
			result = append(result, e)
		}
	}
	return result
}
