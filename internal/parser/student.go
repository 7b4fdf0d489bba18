package parser

import (
	"regexp"
	"strings"

	"github.com/noah-isme/roster-import-api/internal/models"
)

// Strategy names reported on parsed records.
const (
	StrategyDelimited    = "delimited"
	StrategyComma        = "comma"
	StrategyLeadingToken = "leading_token"
	StrategyNumberedList = "numbered_list"
	StrategyFaculty      = "faculty_delimited"
)

const minRollLength = 6

// Strategy attempts to turn one line into a record. The bool reports a match.
type Strategy struct {
	Name  string
	Parse func(line string) (models.ParsedRecord, bool)
}

var (
	wideGap         = regexp.MustCompile(`\t+|\s{2,}`)
	nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)
	alphanumeric    = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	tenDigits       = regexp.MustCompile(`^\d{10}$`)
	leadingToken    = regexp.MustCompile(`(?i)^([A-Z0-9]{6,15})\s+(.+)$`)
	numberedList    = regexp.MustCompile(`(?i)^\d+[.\s]+([A-Z0-9]{6,15})\s+(.+)$`)
)

// StudentStrategies is the precedence-ordered cascade for student rosters.
// The first strategy that matches a line wins.
var StudentStrategies = []Strategy{
	{Name: StrategyDelimited, Parse: parseDelimited},
	{Name: StrategyComma, Parse: parseCommaSeparated},
	{Name: StrategyLeadingToken, Parse: parseLeadingToken},
	{Name: StrategyNumberedList, Parse: parseNumberedList},
}

// ParseStudentLine offers the line to each strategy in order.
func ParseStudentLine(line string) (models.ParsedRecord, bool) {
	for _, strategy := range StudentStrategies {
		if record, ok := strategy.Parse(line); ok {
			record.Strategy = strategy.Name
			return record, true
		}
	}
	return models.ParsedRecord{}, false
}

func parseDelimited(line string) (models.ParsedRecord, bool) {
	return fromFields(splitFields(wideGap.Split(line, -1)))
}

func parseCommaSeparated(line string) (models.ParsedRecord, bool) {
	return fromFields(splitFields(strings.Split(line, ",")))
}

func parseLeadingToken(line string) (models.ParsedRecord, bool) {
	m := leadingToken.FindStringSubmatch(line)
	if m == nil {
		return models.ParsedRecord{}, false
	}
	return studentRecord(m[1], m[2])
}

func parseNumberedList(line string) (models.ParsedRecord, bool) {
	m := numberedList.FindStringSubmatch(line)
	if m == nil {
		return models.ParsedRecord{}, false
	}
	return studentRecord(m[1], m[2])
}

// fromFields assigns roles for the split strategies: roll, name, then email
// and phone anywhere after the name. The roll is field 0 with every
// non-alphanumeric character removed. Only when field 1 is already a contact
// field is field 0 read as "ROLL Full Name" and split on its first whitespace.
func fromFields(fields []string) (models.ParsedRecord, bool) {
	if len(fields) < 2 {
		return models.ParsedRecord{}, false
	}
	if head := strings.Fields(fields[0]); len(head) > 1 && isContactField(fields[1]) {
		fields = append([]string{head[0], strings.Join(head[1:], " ")}, fields[1:]...)
	}
	roll := nonAlphanumeric.ReplaceAllString(fields[0], "")
	record, ok := studentRecord(roll, fields[1])
	if !ok {
		return record, false
	}
	for _, field := range fields[2:] {
		switch {
		case record.Email == "" && strings.Contains(field, "@"):
			record.Email = field
		case record.Phone == "" && tenDigits.MatchString(field):
			record.Phone = field
		}
	}
	return record, true
}

func isContactField(field string) bool {
	return strings.Contains(field, "@") || tenDigits.MatchString(field)
}

func studentRecord(roll, fullName string) (models.ParsedRecord, bool) {
	if len(roll) < minRollLength || !alphanumeric.MatchString(roll) {
		return models.ParsedRecord{}, false
	}
	name, first, last := splitName(fullName, models.ProfileStudent)
	if name == "" {
		return models.ParsedRecord{}, false
	}
	return models.ParsedRecord{RollNumber: roll, Name: name, FirstName: first, LastName: last}, true
}

func splitFields(raw []string) []string {
	fields := make([]string, 0, len(raw))
	for _, f := range raw {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			fields = append(fields, trimmed)
		}
	}
	return fields
}
