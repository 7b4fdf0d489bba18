package service

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/roster-import-api/internal/dto"
	"github.com/noah-isme/roster-import-api/internal/models"
	"github.com/noah-isme/roster-import-api/internal/parser"
	appErrors "github.com/noah-isme/roster-import-api/pkg/errors"
	"github.com/noah-isme/roster-import-api/pkg/logger"
)

const (
	recordSavepoint     = "roster_record"
	maxErrorMessageLen  = 120
	defaultMaxErrors    = 10
	previewCachePrefix  = "roster:preview:"
	importStatusSuccess = "success"
	importStatusFailed  = "failed"
	importStatusInvalid = "rejected"
)

var emailSlugInvalid = regexp.MustCompile(`[^a-z0-9.]+`)

type rosterStore interface {
	LockScope(ctx context.Context, exec sqlx.ExtContext, scope string) error
	EmailExists(ctx context.Context, exec sqlx.ExtContext, email string) (bool, error)
	RollNumberExists(ctx context.Context, exec sqlx.ExtContext, rollNumber string) (bool, error)
	CreateUser(ctx context.Context, exec sqlx.ExtContext, user *models.User) error
	CreateStudentEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollment *models.StudentEnrollment) error
	CreateFacultyMember(ctx context.Context, exec sqlx.ExtContext, member *models.FacultyMember) error
	Savepoint(ctx context.Context, exec sqlx.ExtContext, name string) error
	RollbackToSavepoint(ctx context.Context, exec sqlx.ExtContext, name string) error
	ReleaseSavepoint(ctx context.Context, exec sqlx.ExtContext, name string) error
}

type scopeReader interface {
	FindSection(ctx context.Context, id string) (*models.Section, error)
	FindDepartment(ctx context.Context, id string) (*models.Department, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type textExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

type uploadStore interface {
	Path(filename string) string
	Delete(filename string) error
}

type previewCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RosterImportConfig tunes the import engine.
type RosterImportConfig struct {
	EmailDomain     string
	DefaultPassword string
	MaxErrors       int
	BcryptCost      int
	PreviewTTL      time.Duration
}

// RosterImportService parses uploaded roster documents and writes the
// resulting identities inside a single transaction.
type RosterImportService struct {
	scopes    scopeReader
	repo      rosterStore
	db        txProvider
	extractor textExtractor
	uploads   uploadStore
	cache     previewCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    RosterImportConfig
}

// NewRosterImportService constructs a RosterImportService.
func NewRosterImportService(
	scopes scopeReader,
	repo rosterStore,
	db txProvider,
	extractor textExtractor,
	uploads uploadStore,
	cache previewCache,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg RosterImportConfig,
) *RosterImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = defaultMaxErrors
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	cfg.EmailDomain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(cfg.EmailDomain)), "@")
	return &RosterImportService{
		scopes:    scopes,
		repo:      repo,
		db:        db,
		extractor: extractor,
		uploads:   uploads,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    cfg,
	}
}

// importTarget is the resolved scope records are written into.
type importTarget struct {
	profile      models.RosterProfile
	lockKey      string
	sectionID    string
	departmentID string
}

// Import parses the uploaded document and imports every record it yields.
// The upload is removed on every exit path.
func (s *RosterImportService) Import(ctx context.Context, req dto.RosterImportRequest) (*models.ImportResult, error) {
	defer s.removeUpload(req.Upload)

	start := time.Now()
	log := logger.ForContext(s.logger, ctx).With(zap.String("profile", string(req.Profile)))

	result, err := s.runImport(ctx, log, req)
	status := importStatusSuccess
	if err != nil {
		status = importStatusInvalid
		if appErrors.Is(err, appErrors.ErrImportFailed) || appErrors.Is(err, appErrors.ErrInternal) {
			status = importStatusFailed
		}
	}
	s.metrics.ObserveImport(req.Profile, status, time.Since(start))
	if err != nil {
		return nil, err
	}

	log.Info("roster import finished",
		zap.String("requested_by", req.RequestedBy),
		zap.Int("total", result.Total),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (s *RosterImportService) runImport(ctx context.Context, log *zap.Logger, req dto.RosterImportRequest) (*models.ImportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import request")
	}

	target, err := s.resolveTarget(ctx, req)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("scope", target.lockKey))
	log.Info("roster import started", zap.String("requested_by", req.RequestedBy))

	text, err := s.extractUpload(ctx, req.Upload)
	if err != nil {
		return nil, err
	}

	records, err := s.parseRecords(req.Profile, text)
	if err != nil {
		return nil, err
	}

	password := req.DefaultPassword
	if password == "" {
		password = s.config.DefaultPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash default password")
	}

	result, counts, err := s.importRecords(ctx, log, target, records, string(hash))
	if err != nil {
		log.Error("roster import rolled back", zap.Int("records", len(records)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrImportFailed.Code, appErrors.ErrImportFailed.Status, "roster import failed; no records were saved")
	}
	s.metrics.RecordImportOutcomes(req.Profile, counts)
	return result, nil
}

// Preview runs the parse stages only and returns the records an import would attempt.
func (s *RosterImportService) Preview(ctx context.Context, req dto.RosterPreviewRequest) (*dto.RosterPreviewResponse, error) {
	defer s.removeUpload(req.Upload)

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preview request")
	}

	text, err := s.extractUpload(ctx, req.Upload)
	if err != nil {
		return nil, err
	}

	log := logger.ForContext(s.logger, ctx).With(zap.String("profile", string(req.Profile)))
	key := previewCacheKey(req.Profile, text)
	if s.cache != nil {
		var cached dto.RosterPreviewResponse
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Debug("preview cache lookup failed", zap.String("key", key), zap.Error(err))
		} else if hit {
			cached.Cached = true
			return &cached, nil
		}
	}

	records, err := s.parseRecords(req.Profile, text)
	if err != nil {
		return nil, err
	}

	resp := &dto.RosterPreviewResponse{Profile: req.Profile, Total: len(records), Records: records}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp, s.config.PreviewTTL); err != nil {
			log.Debug("preview cache store failed", zap.String("key", key), zap.Error(err))
		}
	}
	return resp, nil
}

func (s *RosterImportService) resolveTarget(ctx context.Context, req dto.RosterImportRequest) (importTarget, error) {
	target := importTarget{profile: req.Profile}
	switch req.Profile {
	case models.ProfileStudent:
		sectionID := strings.TrimSpace(req.SectionID)
		if sectionID == "" {
			return target, appErrors.Clone(appErrors.ErrReference, "section_id is required for student imports")
		}
		section, err := s.scopes.FindSection(ctx, sectionID)
		if err != nil {
			return target, scopeLookupError(err, "section not found")
		}
		target.sectionID = section.ID
		target.departmentID = section.DepartmentID
		target.lockKey = "section:" + section.ID
	case models.ProfileFaculty:
		departmentID := strings.TrimSpace(req.DepartmentID)
		if departmentID == "" {
			return target, appErrors.Clone(appErrors.ErrReference, "department_id is required for faculty imports")
		}
		department, err := s.scopes.FindDepartment(ctx, departmentID)
		if err != nil {
			return target, scopeLookupError(err, "department not found")
		}
		target.departmentID = department.ID
		target.lockKey = "department:" + department.ID
	default:
		return target, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown roster profile %q", req.Profile))
	}
	return target, nil
}

func scopeLookupError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrReference, message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load import scope")
}

func (s *RosterImportService) extractUpload(ctx context.Context, upload string) (string, error) {
	path := s.uploads.Path(upload)
	if path == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "invalid upload reference")
	}
	text, err := s.extractor.Extract(ctx, path)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrExtractionFailed.Code, appErrors.ErrExtractionFailed.Status, appErrors.ErrExtractionFailed.Message)
	}
	return text, nil
}

func (s *RosterImportService) parseRecords(profile models.RosterProfile, text string) ([]models.ParsedRecord, error) {
	records, err := parser.Parse(profile, text)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported roster profile")
	}
	if len(records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no valid records found in document; "+parser.FormatHint(profile))
	}
	return records, nil
}

// importRecords processes records in document order on one transaction. Any
// error it returns means the transaction was rolled back.
func (s *RosterImportService) importRecords(ctx context.Context, log *zap.Logger, target importTarget, records []models.ParsedRecord, passwordHash string) (result *models.ImportResult, counts map[models.OutcomeKind]int, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.LockScope(ctx, tx, target.lockKey); err != nil {
		return nil, nil, err
	}

	report := newImportReport(len(records), s.config.MaxErrors)
	for _, record := range records {
		outcome, recErr := s.importRecord(ctx, tx, target, record, passwordHash)
		if recErr != nil {
			err = fmt.Errorf("line %d: %w", record.Line, recErr)
			return nil, nil, err
		}
		if outcome.Kind == models.OutcomeSkippedError {
			log.Warn("roster record skipped", zap.Int("line", record.Line), zap.String("reason", outcome.Reason))
		}
		report.add(outcome)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit transaction: %w", err)
	}
	return report.result(), report.counts, nil
}

// importRecord resolves one record to an outcome. A returned error is not
// attributable to the record and must abort the whole import.
func (s *RosterImportService) importRecord(ctx context.Context, tx *sqlx.Tx, target importTarget, record models.ParsedRecord, passwordHash string) (models.ImportOutcome, error) {
	email := s.effectiveEmail(target.profile, record)

	exists, err := s.repo.EmailExists(ctx, tx, email)
	if err != nil {
		return models.ImportOutcome{}, err
	}
	if !exists && target.profile == models.ProfileStudent {
		exists, err = s.repo.RollNumberExists(ctx, tx, record.RollNumber)
		if err != nil {
			return models.ImportOutcome{}, err
		}
	}
	if exists {
		return models.ImportOutcome{Kind: models.OutcomeSkippedDuplicate}, nil
	}

	if err := s.repo.Savepoint(ctx, tx, recordSavepoint); err != nil {
		return models.ImportOutcome{}, err
	}
	if writeErr := s.writeRecord(ctx, tx, target, record, email, passwordHash); writeErr != nil {
		if !isRowFault(writeErr) {
			return models.ImportOutcome{}, writeErr
		}
		if err := s.repo.RollbackToSavepoint(ctx, tx, recordSavepoint); err != nil {
			return models.ImportOutcome{}, err
		}
		return models.ImportOutcome{Kind: models.OutcomeSkippedError, Reason: rowErrorMessage(record, writeErr)}, nil
	}
	if err := s.repo.ReleaseSavepoint(ctx, tx, recordSavepoint); err != nil {
		return models.ImportOutcome{}, err
	}
	return models.ImportOutcome{Kind: models.OutcomeImported}, nil
}

func (s *RosterImportService) writeRecord(ctx context.Context, tx *sqlx.Tx, target importTarget, record models.ParsedRecord, email, passwordHash string) error {
	user := &models.User{
		Email:        email,
		PasswordHash: passwordHash,
		FullName:     record.Name,
		FirstName:    record.FirstName,
		LastName:     record.LastName,
		Phone:        optionalString(record.Phone),
		DepartmentID: optionalString(target.departmentID),
		Active:       true,
	}

	switch target.profile {
	case models.ProfileStudent:
		user.Role = models.RoleStudent
		if err := s.repo.CreateUser(ctx, tx, user); err != nil {
			return err
		}
		return s.repo.CreateStudentEnrollment(ctx, tx, &models.StudentEnrollment{
			UserID:     user.ID,
			RollNumber: record.RollNumber,
			SectionID:  target.sectionID,
		})
	default:
		user.Role = models.RoleFaculty
		if err := s.repo.CreateUser(ctx, tx, user); err != nil {
			return err
		}
		return s.repo.CreateFacultyMember(ctx, tx, &models.FacultyMember{
			UserID:       user.ID,
			DepartmentID: target.departmentID,
		})
	}
}

// effectiveEmail returns the parsed email or a deterministic institutional fallback.
func (s *RosterImportService) effectiveEmail(profile models.RosterProfile, record models.ParsedRecord) string {
	if record.Email != "" {
		return record.Email
	}
	if profile == models.ProfileStudent {
		return strings.ToLower(record.RollNumber) + "@" + s.config.EmailDomain
	}
	local := strings.Join(strings.Fields(strings.ToLower(record.Name)), ".")
	local = strings.Trim(emailSlugInvalid.ReplaceAllString(local, ""), ".")
	if local == "" {
		sum := sha1.Sum([]byte(record.Name))
		local = "faculty." + hex.EncodeToString(sum[:])[:10]
	}
	return local + "@" + s.config.EmailDomain
}

func (s *RosterImportService) removeUpload(upload string) {
	if upload == "" || s.uploads == nil {
		return
	}
	if err := s.uploads.Delete(upload); err != nil {
		s.logger.Warn("failed to remove roster upload", zap.String("upload", upload), zap.Error(err))
	}
}

// isRowFault reports whether err is a server-side rejection of one record's
// data, after which the transaction can continue from the record savepoint.
func isRowFault(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code.Class() {
	case "22", "23":
		return true
	default:
		return false
	}
}

func rowErrorMessage(record models.ParsedRecord, err error) string {
	msg := err.Error()
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		msg = pqErr.Message
	}
	return record.Key() + ": " + truncate(msg, maxErrorMessageLen)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func previewCacheKey(profile models.RosterProfile, text string) string {
	sum := sha256.Sum256([]byte(text))
	return previewCachePrefix + string(profile) + ":" + hex.EncodeToString(sum[:])
}

// importReport accumulates per-record outcomes into an ImportResult.
type importReport struct {
	total     int
	maxErrors int
	counts    map[models.OutcomeKind]int
	errors    []string
}

func newImportReport(total, maxErrors int) *importReport {
	return &importReport{
		total:     total,
		maxErrors: maxErrors,
		counts:    make(map[models.OutcomeKind]int, 3),
		errors:    make([]string, 0),
	}
}

func (r *importReport) add(outcome models.ImportOutcome) {
	r.counts[outcome.Kind]++
	if outcome.Kind == models.OutcomeSkippedError && len(r.errors) < r.maxErrors {
		r.errors = append(r.errors, outcome.Reason)
	}
}

func (r *importReport) result() *models.ImportResult {
	return &models.ImportResult{
		Total:    r.total,
		Imported: r.counts[models.OutcomeImported],
		Skipped:  r.counts[models.OutcomeSkippedDuplicate] + r.counts[models.OutcomeSkippedError],
		Errors:   r.errors,
	}
}
