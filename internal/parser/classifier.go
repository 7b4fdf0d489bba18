package parser

import (
	"regexp"
	"strings"

	"github.com/noah-isme/roster-import-api/internal/models"
)

var lineBreak = regexp.MustCompile(`\r\n|\r|\n`)

// ClassifyLines splits extracted text into trimmed, non-empty candidate lines
// and drops header/label rows wherever they appear.
func ClassifyLines(text string) []models.RawLine {
	parts := lineBreak.Split(text, -1)
	lines := make([]models.RawLine, 0, len(parts))
	for i, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" || isHeaderLine(trimmed) {
			continue
		}
		lines = append(lines, models.RawLine{Number: i + 1, Text: trimmed})
	}
	return lines
}

func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "roll") && strings.Contains(lower, "name") {
		return true
	}
	return strings.Contains(lower, "s.no") || strings.Contains(lower, "sl.no")
}
