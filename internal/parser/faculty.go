package parser

import (
	"regexp"
	"strings"

	"github.com/noah-isme/roster-import-api/internal/models"
)

var commaOrTab = regexp.MustCompile(`[,\t]`)

// ParseFacultyLine handles the single faculty strategy: comma or tab separated
// fields with the name first.
func ParseFacultyLine(line string) (models.ParsedRecord, bool) {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "name") && strings.Contains(lower, "email") {
		return models.ParsedRecord{}, false
	}
	fields := splitFields(commaOrTab.Split(line, -1))
	if len(fields) == 0 || len(fields[0]) <= 2 {
		return models.ParsedRecord{}, false
	}
	name, first, last := splitName(fields[0], models.ProfileFaculty)
	record := models.ParsedRecord{
		Strategy:  StrategyFaculty,
		Name:      name,
		FirstName: first,
		LastName:  last,
	}
	for _, field := range fields[1:] {
		switch {
		case record.Email == "" && strings.Contains(field, "@"):
			record.Email = field
		case record.Phone == "" && tenDigits.MatchString(field):
			record.Phone = field
		}
	}
	return record, true
}
