package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/roster-import-api/internal/dto"
	"github.com/noah-isme/roster-import-api/internal/models"
	"github.com/noah-isme/roster-import-api/internal/repository"
	appErrors "github.com/noah-isme/roster-import-api/pkg/errors"
)

// --- Fixtures ---

type rosterStoreStub struct {
	emails      map[string]bool
	rolls       map[string]bool
	users       []*models.User
	enrollments []*models.StudentEnrollment
	faculty     []*models.FacultyMember
	locks       []string

	enrollErr  map[string]error
	lookupErr  error
	lookupFail int
	lookups    int

	savedUsers       int
	savedEnrollments int
}

func newRosterStoreStub() *rosterStoreStub {
	return &rosterStoreStub{
		emails:    map[string]bool{},
		rolls:     map[string]bool{},
		enrollErr: map[string]error{},
	}
}

func (s *rosterStoreStub) LockScope(ctx context.Context, exec sqlx.ExtContext, scope string) error {
	s.locks = append(s.locks, scope)
	return nil
}

func (s *rosterStoreStub) EmailExists(ctx context.Context, exec sqlx.ExtContext, email string) (bool, error) {
	s.lookups++
	if s.lookupErr != nil && s.lookups >= s.lookupFail {
		return false, s.lookupErr
	}
	return s.emails[email], nil
}

func (s *rosterStoreStub) RollNumberExists(ctx context.Context, exec sqlx.ExtContext, rollNumber string) (bool, error) {
	return s.rolls[rollNumber], nil
}

func (s *rosterStoreStub) CreateUser(ctx context.Context, exec sqlx.ExtContext, user *models.User) error {
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", len(s.users)+1)
	}
	s.users = append(s.users, user)
	s.emails[user.Email] = true
	return nil
}

func (s *rosterStoreStub) CreateStudentEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollment *models.StudentEnrollment) error {
	if err := s.enrollErr[enrollment.RollNumber]; err != nil {
		return fmt.Errorf("create student enrollment: %w", err)
	}
	s.enrollments = append(s.enrollments, enrollment)
	s.rolls[enrollment.RollNumber] = true
	return nil
}

func (s *rosterStoreStub) CreateFacultyMember(ctx context.Context, exec sqlx.ExtContext, member *models.FacultyMember) error {
	s.faculty = append(s.faculty, member)
	return nil
}

func (s *rosterStoreStub) Savepoint(ctx context.Context, exec sqlx.ExtContext, name string) error {
	s.savedUsers = len(s.users)
	s.savedEnrollments = len(s.enrollments)
	return nil
}

func (s *rosterStoreStub) RollbackToSavepoint(ctx context.Context, exec sqlx.ExtContext, name string) error {
	for _, user := range s.users[s.savedUsers:] {
		delete(s.emails, user.Email)
	}
	for _, enrollment := range s.enrollments[s.savedEnrollments:] {
		delete(s.rolls, enrollment.RollNumber)
	}
	s.users = s.users[:s.savedUsers]
	s.enrollments = s.enrollments[:s.savedEnrollments]
	return nil
}

func (s *rosterStoreStub) ReleaseSavepoint(ctx context.Context, exec sqlx.ExtContext, name string) error {
	return nil
}

type scopeReaderStub struct{}

func (scopeReaderStub) FindSection(ctx context.Context, id string) (*models.Section, error) {
	if id != "sec-1" {
		return nil, sql.ErrNoRows
	}
	return &models.Section{ID: "sec-1", Name: "CSE-A", DepartmentID: "dep-1"}, nil
}

func (scopeReaderStub) FindDepartment(ctx context.Context, id string) (*models.Department, error) {
	if id != "dep-1" {
		return nil, sql.ErrNoRows
	}
	return &models.Department{ID: "dep-1", Name: "Computer Science", Code: "CSE"}, nil
}

type extractorStub struct {
	text  string
	err   error
	calls int
}

func (e *extractorStub) Extract(ctx context.Context, path string) (string, error) {
	e.calls++
	return e.text, e.err
}

type uploadStoreStub struct {
	deleted []string
}

func (u *uploadStoreStub) Path(filename string) string {
	if strings.Contains(filename, "..") {
		return ""
	}
	return "/tmp/uploads/" + filename
}

func (u *uploadStoreStub) Delete(filename string) error {
	u.deleted = append(u.deleted, filename)
	return nil
}

type previewCacheStub struct {
	entries map[string]dto.RosterPreviewResponse
	getErr  error
	setErr  error
}

func (c *previewCacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c.getErr != nil {
		return false, c.getErr
	}
	entry, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	*(dest.(*dto.RosterPreviewResponse)) = entry
	return true, nil
}

func (c *previewCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key] = *(value.(*dto.RosterPreviewResponse))
	return nil
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (*txProviderMock, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type rosterFixture struct {
	service   *RosterImportService
	store     *rosterStoreStub
	extractor *extractorStub
	uploads   *uploadStoreStub
	cache     *previewCacheStub
	mock      sqlmock.Sqlmock
}

func newRosterFixture(t *testing.T, text string) *rosterFixture {
	tx, mock := newTxProviderMock(t)
	f := &rosterFixture{
		store:     newRosterStoreStub(),
		extractor: &extractorStub{text: text},
		uploads:   &uploadStoreStub{},
		cache:     &previewCacheStub{entries: map[string]dto.RosterPreviewResponse{}},
		mock:      mock,
	}
	f.service = NewRosterImportService(scopeReaderStub{}, f.store, tx, f.extractor, f.uploads, f.cache, nil, nil, nil, RosterImportConfig{
		EmailDomain:     "College.edu",
		DefaultPassword: "Welcome@123",
		MaxErrors:       10,
		BcryptCost:      bcrypt.MinCost,
	})
	return f
}

func studentRequest() dto.RosterImportRequest {
	return dto.RosterImportRequest{Profile: models.ProfileStudent, SectionID: "sec-1", Upload: "roster.txt"}
}

// --- Tests ---

func TestRosterImportServiceRoundTrip(t *testing.T) {
	f := newRosterFixture(t, strings.Join([]string{
		"Roll No\tName\tEmail",
		"21CS1A0101 Rahul Kumar    rahul@email.com    9876543210",
		"21CS1A0102, Priya Sharma",
		"3. 21cs1a0103 Amit",
	}, "\n"))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.service.Import(context.Background(), studentRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 0, result.Skipped)
	assert.NotNil(t, result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, f.store.users, 3)
	assert.Equal(t, "rahul@email.com", f.store.users[0].Email)
	assert.Equal(t, "21cs1a0102@college.edu", f.store.users[1].Email)
	assert.Equal(t, "21cs1a0103@college.edu", f.store.users[2].Email)
	assert.Equal(t, "Student", f.store.users[2].LastName)
	require.NotNil(t, f.store.users[0].Phone)
	assert.Equal(t, "9876543210", *f.store.users[0].Phone)

	for _, user := range f.store.users {
		assert.Equal(t, models.RoleStudent, user.Role)
		require.NotNil(t, user.DepartmentID)
		assert.Equal(t, "dep-1", *user.DepartmentID)
		assert.Equal(t, f.store.users[0].PasswordHash, user.PasswordHash)
	}
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(f.store.users[0].PasswordHash), []byte("Welcome@123")))

	require.Len(t, f.store.enrollments, 3)
	assert.Equal(t, "21CS1A0103", f.store.enrollments[2].RollNumber)
	assert.Equal(t, "sec-1", f.store.enrollments[0].SectionID)
	assert.Equal(t, []string{"section:sec-1"}, f.store.locks)
	assert.Equal(t, []string{"roster.txt"}, f.uploads.deleted)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRosterImportServiceDuplicateWithinDocument(t *testing.T) {
	f := newRosterFixture(t, "21CS1A0105, A\n21CS1A0105, B")
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.service.Import(context.Background(), studentRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Errors)
	require.Len(t, f.store.users, 1)
	assert.Equal(t, "A", f.store.users[0].FirstName)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRosterImportServiceDuplicateByEmailAcrossRolls(t *testing.T) {
	f := newRosterFixture(t, "21CS1A0106, Ravi Teja, ravi@email.com\n21CS1A0107, Ravi T, ravi@email.com")
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.service.Import(context.Background(), studentRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRosterImportServiceRerunIsIdempotent(t *testing.T) {
	f := newRosterFixture(t, "21CS1A0101, Rahul Kumar\n21CS1A0102, Priya Sharma")
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	first, err := f.service.Import(context.Background(), studentRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Imported)

	second, err := f.service.Import(context.Background(), studentRequest())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, second.Total, second.Skipped)
	assert.Empty(t, second.Errors)
	assert.Len(t, f.store.users, 2)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRosterImportServiceMissingScope(t *testing.T) {
	cases := []dto.RosterImportRequest{
		{Profile: models.ProfileStudent, Upload: "roster.txt"},
		{Profile: models.ProfileStudent, SectionID: "   ", Upload: "roster.txt"},
		{Profile: models.ProfileStudent, SectionID: "sec-404", Upload: "roster.txt"},
		{Profile: models.ProfileFaculty, Upload: "roster.txt"},
		{Profile: models.ProfileFaculty, DepartmentID: "dep-404", Upload: "roster.txt"},
	}
	for _, req := range cases {
		f := newRosterFixture(t, "21CS1A0101, Rahul Kumar")

		_, err := f.service.Import(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrReference.Code, appErrors.FromError(err).Code)
		assert.Zero(t, f.extractor.calls)
		assert.Empty(t, f.store.users)
		assert.Equal(t, []string{"roster.txt"}, f.uploads.deleted)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	}
}

func TestRosterImportServiceNoRecords(t *testing.T) {
	f := newRosterFixture(t, "Roll No\tName\nClass: CSE-A\n\nTotal: 45")

	_, err := f.service.Import(context.Background(), studentRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "expected one student per line")
	assert.Empty(t, f.store.locks)
	assert.Equal(t, []string{"roster.txt"}, f.uploads.deleted)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRosterImportServiceInvalidRequest(t *testing.T) {
	f := newRosterFixture(t, "21CS1A0101, Rahul Kumar")

	_, err := f.service.Import(context.Background(), dto.RosterImportRequest{Profile: "alumni", SectionID: "sec-1", Upload: "roster.txt"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.service.Import(context.Background(), dto.RosterImportRequest{Profile: models.ProfileStudent, SectionID: "sec-1", DefaultPassword: "abc", Upload: "roster.txt"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Len(t, f.uploads.deleted, 2)
}

func TestRosterImportServiceExtractionFailure(t *testing.T) {
	f := newRosterFixture(t, "")
	f.extractor.err = errors.New("corrupt archive")

	_, err := f.service.Import(context.Background(), studentRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrExtractionFailed.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{"roster.txt"}, f.uploads.deleted)
}

func TestRosterImportServiceRowFaultsAreSkipped(t *testing.T) {
	lines := make([]string, 0, 13)
	for i := 1; i <= 12; i++ {
		lines = append(lines, fmt.Sprintf("21CS1A%04d, Student %d", i, i))
	}
	lines = append(lines, "21CS1A9999, Last Student")
	f := newRosterFixture(t, strings.Join(lines, "\n"))
	for i := 1; i <= 12; i++ {
		f.store.enrollErr[fmt.Sprintf("21CS1A%04d", i)] = &pq.Error{
			Code:    "23514",
			Message: "new row for relation \"student_enrollments\" violates check constraint \"roll_number_format\"",
		}
	}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.service.Import(context.Background(), studentRequest())
	require.NoError(t, err)
	assert.Equal(t, 13, result.Total)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 12, result.Skipped)
	require.Len(t, result.Errors, 10)
	assert.True(t, strings.HasPrefix(result.Errors[0], "21CS1A0001: "))
	assert.Contains(t, result.Errors[0], "violates check constraint")

	require.Len(t, f.store.users, 1, "partial writes of failed records are discarded")
	assert.Equal(t, "21cs1a9999@college.edu", f.store.users[0].Email)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRosterImportServiceConnectionFaultAbortsImport(t *testing.T) {
	f := newRosterFixture(t, "21CS1A0101, Rahul Kumar\n21CS1A0102, Priya Sharma\n21CS1A0103, Amit Singh")
	f.store.lookupErr = errors.New("read tcp: connection reset by peer")
	f.store.lookupFail = 3
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	result, err := f.service.Import(context.Background(), studentRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, appErrors.ErrImportFailed.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{"roster.txt"}, f.uploads.deleted)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRosterImportServiceNonDataErrorIsNotRowFault(t *testing.T) {
	f := newRosterFixture(t, "21CS1A0101, Rahul Kumar")
	f.store.enrollErr["21CS1A0101"] = &pq.Error{Code: "57P01", Message: "terminating connection due to administrator command"}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.Import(context.Background(), studentRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrImportFailed.Code, appErrors.FromError(err).Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRosterImportServiceConnectionFaultDiscardsCommittedRows(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	uploads := &uploadStoreStub{}
	service := NewRosterImportService(
		scopeReaderStub{},
		repository.NewRosterRepository(sqlxDB),
		sqlxDB,
		&extractorStub{text: "21CS1A0101, Rahul Kumar\n21CS1A0102, Priya Sharma\n21CS1A0103, Amit Singh"},
		uploads,
		nil, nil, nil, nil,
		RosterImportConfig{EmailDomain: "college.edu", DefaultPassword: "Welcome@123", BcryptCost: bcrypt.MinCost},
	)

	noRows := func() *sqlmock.Rows { return sqlmock.NewRows([]string{"exists"}) }
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("section:sec-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	for _, roll := range []string{"21CS1A0101", "21CS1A0102"} {
		mock.ExpectQuery("SELECT 1 FROM users WHERE email").
			WithArgs(strings.ToLower(roll) + "@college.edu").
			WillReturnRows(noRows())
		mock.ExpectQuery("SELECT 1 FROM student_enrollments WHERE roll_number").
			WithArgs(roll).
			WillReturnRows(noRows())
		mock.ExpectExec(regexp.QuoteMeta(`SAVEPOINT "roster_record"`)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO student_enrollments").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(regexp.QuoteMeta(`RELEASE SAVEPOINT "roster_record"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectQuery("SELECT 1 FROM users WHERE email").
		WillReturnError(errors.New("read tcp: connection reset by peer"))
	mock.ExpectRollback()

	result, err := service.Import(context.Background(), studentRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, appErrors.ErrImportFailed.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{"roster.txt"}, uploads.deleted)
	assert.NoError(t, mock.ExpectationsWereMet(), "transaction must roll back without commit")
}

func TestRosterImportServiceFacultyImport(t *testing.T) {
	f := newRosterFixture(t, strings.Join([]string{
		"Name, Email, Phone",
		"Dr. Anita Rao, anita@college.edu, 9123456789",
		"Suresh",
	}, "\n"))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.service.Import(context.Background(), dto.RosterImportRequest{
		Profile:         models.ProfileFaculty,
		DepartmentID:    "dep-1",
		DefaultPassword: "Faculty#2024",
		Upload:          "faculty.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Imported)

	require.Len(t, f.store.users, 2)
	assert.Equal(t, "anita@college.edu", f.store.users[0].Email)
	assert.Equal(t, "suresh@college.edu", f.store.users[1].Email)
	assert.Equal(t, "Faculty", f.store.users[1].LastName)
	assert.Equal(t, models.RoleFaculty, f.store.users[0].Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(f.store.users[0].PasswordHash), []byte("Faculty#2024")))
	require.Len(t, f.store.faculty, 2)
	assert.Equal(t, "dep-1", f.store.faculty[0].DepartmentID)
	assert.Empty(t, f.store.enrollments)
	assert.Equal(t, []string{"department:dep-1"}, f.store.locks)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRosterImportServiceEffectiveEmail(t *testing.T) {
	svc := NewRosterImportService(nil, nil, nil, nil, nil, nil, nil, nil, nil, RosterImportConfig{EmailDomain: "@College.EDU"})

	assert.Equal(t, "given@mail.com", svc.effectiveEmail(models.ProfileStudent, models.ParsedRecord{RollNumber: "21CS1A0101", Email: "given@mail.com"}))
	assert.Equal(t, "21cs1a0101@college.edu", svc.effectiveEmail(models.ProfileStudent, models.ParsedRecord{RollNumber: "21CS1A0101"}))
	assert.Equal(t, "dr.anita.rao@college.edu", svc.effectiveEmail(models.ProfileFaculty, models.ParsedRecord{Name: "Dr. Anita  Rao"}))
	assert.Equal(t, "maryjane.oneil@college.edu", svc.effectiveEmail(models.ProfileFaculty, models.ParsedRecord{Name: "Mary-Jane O'Neil"}))
	assert.Equal(t, "rjan.sir@college.edu", svc.effectiveEmail(models.ProfileFaculty, models.ParsedRecord{Name: "Ørjan Æsir"}))
	assert.Regexp(t, `^faculty\.[0-9a-f]{10}@college\.edu$`, svc.effectiveEmail(models.ProfileFaculty, models.ParsedRecord{Name: "李 明"}))
}

func TestImportReportCapsErrorsButNotSkips(t *testing.T) {
	report := newImportReport(15, 10)
	report.add(models.ImportOutcome{Kind: models.OutcomeImported})
	report.add(models.ImportOutcome{Kind: models.OutcomeSkippedDuplicate})
	for i := 0; i < 13; i++ {
		report.add(models.ImportOutcome{Kind: models.OutcomeSkippedError, Reason: fmt.Sprintf("ROLL%02d: failed", i)})
	}

	result := report.result()
	assert.Equal(t, 15, result.Total)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 14, result.Skipped)
	assert.Len(t, result.Errors, 10)
	assert.Equal(t, "ROLL00: failed", result.Errors[0])
}

func TestRowErrorMessageIsTruncated(t *testing.T) {
	long := strings.Repeat("x", 300)
	msg := rowErrorMessage(models.ParsedRecord{RollNumber: "21CS1A0101"}, fmt.Errorf("create user: %w", &pq.Error{Code: "23505", Message: long}))
	assert.True(t, strings.HasPrefix(msg, "21CS1A0101: xxx"))
	assert.Equal(t, len("21CS1A0101: ")+maxErrorMessageLen, len(msg))
	assert.True(t, strings.HasSuffix(msg, "..."))

	assert.True(t, isRowFault(fmt.Errorf("wrap: %w", &pq.Error{Code: "23505"})))
	assert.True(t, isRowFault(&pq.Error{Code: "22001"}))
	assert.False(t, isRowFault(&pq.Error{Code: "08006"}))
	assert.False(t, isRowFault(errors.New("driver: bad connection")))
}

func TestRosterImportServicePreview(t *testing.T) {
	text := "21CS1A0101 Rahul Kumar    rahul@email.com\nnot a roster line\n21CS1A0103, Amit Singh"
	f := newRosterFixture(t, text)

	resp, err := f.service.Preview(context.Background(), dto.RosterPreviewRequest{Profile: models.ProfileStudent, Upload: "a.txt"})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Records, 2)
	assert.Equal(t, "21CS1A0101", resp.Records[0].RollNumber)
	assert.Equal(t, 3, resp.Records[1].Line)

	again, err := f.service.Preview(context.Background(), dto.RosterPreviewRequest{Profile: models.ProfileStudent, Upload: "b.txt"})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, resp.Records, again.Records)

	assert.Empty(t, f.store.users)
	assert.Empty(t, f.store.locks)
	assert.Equal(t, []string{"a.txt", "b.txt"}, f.uploads.deleted)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRosterImportServicePreviewSurvivesCacheFailures(t *testing.T) {
	f := newRosterFixture(t, "21CS1A0101, Rahul Kumar\n21CS1A0102, Priya Sharma")
	f.cache.getErr = errors.New("redis: connection refused")
	f.cache.setErr = errors.New("redis: connection refused")

	for _, upload := range []string{"a.txt", "b.txt"} {
		resp, err := f.service.Preview(context.Background(), dto.RosterPreviewRequest{Profile: models.ProfileStudent, Upload: upload})
		require.NoError(t, err)
		assert.False(t, resp.Cached)
		assert.Equal(t, 2, resp.Total)
	}
	assert.Equal(t, 2, f.extractor.calls)
	assert.Empty(t, f.cache.entries)
}

func TestRosterImportServicePreviewRejectsBadUpload(t *testing.T) {
	f := newRosterFixture(t, "21CS1A0101, Rahul Kumar")

	_, err := f.service.Preview(context.Background(), dto.RosterPreviewRequest{Profile: models.ProfileStudent, Upload: "../etc/passwd"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, f.extractor.calls)
}
