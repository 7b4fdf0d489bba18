package parser

import (
	"strings"

	"github.com/noah-isme/roster-import-api/internal/models"
)

// splitName collapses whitespace in a full name and splits it into first and
// last names. A single-token name gets the profile's placeholder surname.
func splitName(fullName string, profile models.RosterProfile) (name, first, last string) {
	tokens := strings.Fields(fullName)
	if len(tokens) == 0 {
		return "", "", ""
	}
	first = tokens[0]
	last = strings.Join(tokens[1:], " ")
	if last == "" {
		last = profile.LastNamePlaceholder()
	}
	return strings.Join(tokens, " "), first, last
}
