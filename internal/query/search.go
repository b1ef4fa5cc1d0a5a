package query

import (
	"slices"
	"strings"

	"github.com/jmylchreest/glint/internal/history"
)

// Search returns entries whose summary or body contains term, ignoring case.
func Search(entries []history.Entry, term string) []history.Entry {
	if term == "" {
		return entries
	}
	term = strings.ToLower(term)
	var result []history.Entry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Summary), term) ||
			strings.Contains(strings.ToLower(e.Body), term) {
			result = append(result, e)
		}
	}
	return result
}

// UniqueApps returns the distinct app names, sorted case-insensitively.
func UniqueApps(entries []history.Entry) []string {
	seen := make(map[string]bool)
	var apps []string
	for _, e := range entries {
		if e.AppName != "" && !seen[e.AppName] {
			seen[e.AppName] = true
			apps = append(apps, e.AppName)
		}
	}
	slices.SortFunc(apps, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return apps
}
