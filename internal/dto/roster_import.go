package dto

import "github.com/noah-isme/roster-import-api/internal/models"

// RosterImportRequest describes one committed roster import. Upload is the
// stored name of the previously uploaded document.
type RosterImportRequest struct {
	Profile         models.RosterProfile `json:"profile" validate:"required,oneof=student faculty"`
	SectionID       string               `json:"section_id"`
	DepartmentID    string               `json:"department_id"`
	DefaultPassword string               `json:"default_password" validate:"omitempty,min=6,max=72"`
	Upload          string               `json:"-" validate:"required"`
	RequestedBy     string               `json:"-"`
}

// RosterPreviewRequest parses a document without writing anything.
type RosterPreviewRequest struct {
	Profile models.RosterProfile `json:"profile" validate:"required,oneof=student faculty"`
	Upload  string               `json:"-" validate:"required"`
}

// RosterPreviewResponse lists the records an import of the same document would attempt.
type RosterPreviewResponse struct {
	Profile models.RosterProfile  `json:"profile"`
	Total   int                   `json:"total"`
	Records []models.ParsedRecord `json:"records"`
	Cached  bool                  `json:"cached"`
}
