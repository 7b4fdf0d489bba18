package parser

import (
	"strings"

	"github.com/noah-isme/roster-import-api/internal/models"
)

// Normalize canonicalises identifiers in place so the import engine can rely on
// them: the roll number is uppercased and contact fields are trimmed.
func Normalize(record *models.ParsedRecord) {
	record.RollNumber = strings.ToUpper(strings.TrimSpace(record.RollNumber))
	record.Email = strings.TrimSpace(record.Email)
	record.Phone = strings.TrimSpace(record.Phone)
}
