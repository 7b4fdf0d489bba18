package models

import "time"

// RosterProfile selects the parsing cascade and persistence shape for an import.
type RosterProfile string

// Supported roster profiles.
const (
	ProfileStudent RosterProfile = "student"
	ProfileFaculty RosterProfile = "faculty"
)

// LastNamePlaceholder returns the surname used when a parsed name has a single token.
func (p RosterProfile) LastNamePlaceholder() string {
	if p == ProfileFaculty {
		return "Faculty"
	}
	return "Student"
}

// RawLine is one candidate line of extracted text with its 1-based position.
type RawLine struct {
	Number int
	Text   string
}

// ParsedRecord is the structured result of parsing a single roster line.
// RollNumber is empty for the faculty profile.
type ParsedRecord struct {
	Line       int    `json:"line"`
	Strategy   string `json:"strategy"`
	RollNumber string `json:"roll_number,omitempty"`
	Name       string `json:"name"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Key identifies the record in row-level error messages.
func (r ParsedRecord) Key() string {
	if r.RollNumber != "" {
		return r.RollNumber
	}
	return r.Name
}

// StudentEnrollment is the roster-identity row for an imported student.
type StudentEnrollment struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	RollNumber string    `db:"roll_number" json:"roll_number"`
	SectionID  string    `db:"section_id" json:"section_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// FacultyMember attaches a faculty login to its department roster.
type FacultyMember struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// OutcomeKind classifies what happened to a single record during import.
type OutcomeKind string

// Import outcomes.
const (
	OutcomeImported         OutcomeKind = "IMPORTED"
	OutcomeSkippedDuplicate OutcomeKind = "SKIPPED_DUPLICATE"
	OutcomeSkippedError     OutcomeKind = "SKIPPED_ERROR"
)

// ImportOutcome is the per-record result of the import engine.
type ImportOutcome struct {
	Kind   OutcomeKind
	Reason string
}

// ImportResult summarises one import call.
type ImportResult struct {
	Total    int      `json:"total"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}
