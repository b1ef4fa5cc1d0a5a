package layout

import (
	"strings"
)

const ellipsis = "…"

// wrap breaks text into lines no wider than width. Paragraph breaks are
// kept; runs of spaces collapse. Words wider than a line are split by rune.
func wrap(text string, width int, m Measurer) []string {
	if text == "" {
		return nil
	}
	w := float64(width)

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}

		line := ""
		for _, word := range words {
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if m.Advance(candidate) <= w {
				line = candidate
				continue
			}
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			for m.Advance(word) > w {
				head, rest := splitToWidth(word, w, m)
				lines = append(lines, head)
				word = rest
			}
			line = word
		}
		lines = append(lines, line)
	}

	// Trailing blank paragraphs add height without content.
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// splitToWidth returns the longest rune prefix of s that fits in w (at least
// one rune) and the remainder.
func splitToWidth(s string, w float64, m Measurer) (string, string) {
	runes := []rune(s)
	n := 1
	for n < len(runes) && m.Advance(string(runes[:n+1])) <= w {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}

// ellipsize shortens s so that s plus an ellipsis fits in width. Text that
// already fits is returned unchanged unless force is set.
func ellipsize(s string, width int, m Measurer, force bool) string {
	w := float64(width)
	if !force && m.Advance(s) <= w {
		return s
	}
	runes := []rune(strings.TrimRight(s, " "))
	for len(runes) > 0 && m.Advance(string(runes)+ellipsis) > w {
		runes = runes[:len(runes)-1]
	}
	return strings.TrimRight(string(runes), " ") + ellipsis
}
