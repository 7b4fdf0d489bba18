// Package parser turns free-form roster text into structured records.
//
// Parsing runs in three pure stages: ClassifyLines drops blank and header
// lines, a per-profile strategy cascade produces at most one record per line,
// and Normalize canonicalises identifiers. Lines no strategy accepts are
// dropped silently.
package parser

import (
	"fmt"

	"github.com/noah-isme/roster-import-api/internal/models"
)

// Parse runs the classify, parse and normalise stages for the given profile.
func Parse(profile models.RosterProfile, text string) ([]models.ParsedRecord, error) {
	var parseLine func(string) (models.ParsedRecord, bool)
	switch profile {
	case models.ProfileStudent:
		parseLine = ParseStudentLine
	case models.ProfileFaculty:
		parseLine = ParseFacultyLine
	default:
		return nil, fmt.Errorf("unknown roster profile %q", profile)
	}

	lines := ClassifyLines(text)
	records := make([]models.ParsedRecord, 0, len(lines))
	for _, line := range lines {
		record, ok := parseLine(line.Text)
		if !ok {
			continue
		}
		record.Line = line.Number
		Normalize(&record)
		records = append(records, record)
	}
	return records, nil
}

// FormatHint describes the accepted layouts for a profile; it accompanies
// validation errors when nothing in a document could be parsed.
func FormatHint(profile models.RosterProfile) string {
	if profile == models.ProfileFaculty {
		return "expected one faculty member per line: Name, email, phone (comma or tab separated)"
	}
	return "expected one student per line: RollNumber Name [email] [phone], separated by tabs, multiple spaces or commas; numbered lists are accepted"
}
