package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/roster-import-api/internal/dto"
	"github.com/noah-isme/roster-import-api/internal/middleware"
	"github.com/noah-isme/roster-import-api/internal/models"
	appErrors "github.com/noah-isme/roster-import-api/pkg/errors"
	"github.com/noah-isme/roster-import-api/pkg/export"
	"github.com/noah-isme/roster-import-api/pkg/logger"
	"github.com/noah-isme/roster-import-api/pkg/response"
)

const multipartOverhead = 1 << 20

type rosterImportService interface {
	Import(ctx context.Context, req dto.RosterImportRequest) (*models.ImportResult, error)
	Preview(ctx context.Context, req dto.RosterPreviewRequest) (*dto.RosterPreviewResponse, error)
}

type uploadSaver interface {
	SaveStream(filename string, r io.Reader) (string, error)
}

// UploadConfig gates uploaded roster documents.
type UploadConfig struct {
	MaxFileSize       int64
	AllowedExtensions []string
}

// RosterImportHandler exposes roster import and preview endpoints.
type RosterImportHandler struct {
	service rosterImportService
	uploads uploadSaver
	config  UploadConfig
	logger  *zap.Logger
}

// NewRosterImportHandler builds a new handler.
func NewRosterImportHandler(service rosterImportService, uploads uploadSaver, cfg UploadConfig, logger *zap.Logger) *RosterImportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 << 20
	}
	return &RosterImportHandler{service: service, uploads: uploads, config: cfg, logger: logger}
}

// ImportStudents godoc
// @Summary Import a student roster
// @Description Parses the uploaded document and creates student logins and enrollments in the section. Duplicates are skipped.
// @Tags Rosters
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Roster document (.txt, .csv, .html, .docx, .doc, .pdf)"
// @Param section_id formData string true "Target section ID"
// @Param default_password formData string false "Initial password for created accounts"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Security BearerAuth
// @Router /rosters/students/import [post]
func (h *RosterImportHandler) ImportStudents(c *gin.Context) {
	h.importRoster(c, models.ProfileStudent)
}

// ImportFaculty godoc
// @Summary Import a faculty roster
// @Description Parses the uploaded document and creates faculty logins in the department. Duplicates are skipped.
// @Tags Rosters
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Roster document (.txt, .csv, .html, .docx, .doc, .pdf)"
// @Param department_id formData string true "Target department ID"
// @Param default_password formData string false "Initial password for created accounts"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Security BearerAuth
// @Router /rosters/faculty/import [post]
func (h *RosterImportHandler) ImportFaculty(c *gin.Context) {
	h.importRoster(c, models.ProfileFaculty)
}

// PreviewStudents godoc
// @Summary Preview a student roster
// @Description Parses the uploaded document without writing anything.
// @Tags Rosters
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Roster document"
// @Param format query string false "Set to csv to download the records as CSV"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /rosters/students/preview [post]
func (h *RosterImportHandler) PreviewStudents(c *gin.Context) {
	h.previewRoster(c, models.ProfileStudent)
}

// PreviewFaculty godoc
// @Summary Preview a faculty roster
// @Description Parses the uploaded document without writing anything.
// @Tags Rosters
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Roster document"
// @Param format query string false "Set to csv to download the records as CSV"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /rosters/faculty/preview [post]
func (h *RosterImportHandler) PreviewFaculty(c *gin.Context) {
	h.previewRoster(c, models.ProfileFaculty)
}

func (h *RosterImportHandler) importRoster(c *gin.Context, profile models.RosterProfile) {
	upload, err := h.receiveUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	req := dto.RosterImportRequest{
		Profile:         profile,
		SectionID:       strings.TrimSpace(c.PostForm("section_id")),
		DepartmentID:    strings.TrimSpace(c.PostForm("department_id")),
		DefaultPassword: c.PostForm("default_password"),
		Upload:          upload,
	}
	if claims := middleware.ClaimsFromContext(c); claims != nil {
		req.RequestedBy = claims.UserID
	}

	result, err := h.service.Import(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, map[string]interface{}{"profile": profile})
}

func (h *RosterImportHandler) previewRoster(c *gin.Context, profile models.RosterProfile) {
	upload, err := h.receiveUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	preview, err := h.service.Preview(c.Request.Context(), dto.RosterPreviewRequest{Profile: profile, Upload: upload})
	if err != nil {
		response.Error(c, err)
		return
	}
	if strings.EqualFold(c.Query("format"), "csv") {
		h.writePreviewCSV(c, preview)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

func (h *RosterImportHandler) writePreviewCSV(c *gin.Context, preview *dto.RosterPreviewResponse) {
	table := export.Table{Headers: []string{"line", "strategy", "roll_number", "name", "first_name", "last_name", "email", "phone"}}
	for _, r := range preview.Records {
		table.Rows = append(table.Rows, []string{strconv.Itoa(r.Line), r.Strategy, r.RollNumber, r.Name, r.FirstName, r.LastName, r.Email, r.Phone})
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-roster-preview.csv"`, preview.Profile))
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, table); err != nil {
		logger.ForContext(h.logger, c.Request.Context()).Error("failed to write preview csv", zap.Error(err))
	}
}

// receiveUpload validates the multipart "file" field and stores it under a
// generated name. The service owns removal from then on.
func (h *RosterImportHandler) receiveUpload(c *gin.Context) (string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxFileSize+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", appErrors.ErrPayloadTooLarge
		}
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "file is required")
	}
	defer file.Close()

	if header.Size > h.config.MaxFileSize {
		return "", appErrors.ErrPayloadTooLarge
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !h.extensionAllowed(ext) {
		return "", appErrors.Clone(appErrors.ErrValidation, "unsupported file type "+ext)
	}

	name, err := h.uploads.SaveStream(uuid.NewString()+ext, file)
	if err != nil {
		logger.ForContext(h.logger, c.Request.Context()).Error("failed to store roster upload", zap.Error(err))
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}
	return name, nil
}

func (h *RosterImportHandler) extensionAllowed(ext string) bool {
	if ext == "" {
		return false
	}
	if len(h.config.AllowedExtensions) == 0 {
		return true
	}
	for _, allowed := range h.config.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}
