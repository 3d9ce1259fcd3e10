// Package parser extracts outstanding items and headings from note lines and
// implements the checkbox toggle used by the editing surface.
package parser

import (
	"strings"

	"github.com/starford/ntoes/internal/models"
)

// Item markers.
const (
	OpenMarker   = "[ ]"
	ClosedMarker = "[X]"
)

// leadingSkip lists the characters skipped before a marker when toggling.
const leadingSkip = " \t+-*#"

// IsOutstanding reports whether line holds an open item.
func IsOutstanding(line string) bool {
	return strings.Contains(line, OpenMarker) && !strings.Contains(line, ClosedMarker)
}

// ExtractItems returns every outstanding item in lines, in file order.
func ExtractItems(lines []string) []models.Item {
	var out []models.Item
	for i, line := range lines {
		if IsOutstanding(line) {
			out = append(out, models.Item{Line: i, Text: line})
		}
	}
	return out
}

// Title returns the text of the first "# " heading, or empty string.
func Title(lines []string) string {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
		return ""
	}
	return ""
}

// Heading renders the first line of a new note.
func Heading(title string) string {
	return "# " + title + "\n\n"
}

// ToggleLine cycles the TODO state of a line:
//
//	text      → [ ] text
//	[?] text  → [X] text   (any single-character state)
//	[X] text  → text
//
// Leading whitespace and list/heading punctuation are preserved.
func ToggleLine(line string) string {
	i := 0
	for i < len(line) && strings.IndexByte(leadingSkip, line[i]) >= 0 {
		i++
	}
	prefix, rest := line[:i], line[i:]

	switch {
	case strings.HasPrefix(rest, ClosedMarker+" "):
		return prefix + rest[len(ClosedMarker)+1:]
	case len(rest) >= 4 && rest[0] == '[' && rest[2:4] == "] ":
		return prefix + ClosedMarker + " " + rest[4:]
	default:
		return prefix + OpenMarker + " " + rest
	}
}
