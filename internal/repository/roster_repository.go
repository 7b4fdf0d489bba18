package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/roster-import-api/internal/models"
)

// RosterRepository writes login identities and roster rows. Every method runs
// on the executor it is given so a whole import shares one transaction and
// observes its own uncommitted inserts.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs a RosterRepository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

func (r *RosterRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// LockScope takes a transaction-scoped advisory lock on the import target so
// concurrent imports into the same section or department run one at a time.
func (r *RosterRepository) LockScope(ctx context.Context, exec sqlx.ExtContext, scope string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scope); err != nil {
		return fmt.Errorf("lock roster scope: %w", err)
	}
	return nil
}

// EmailExists reports whether a login identity already uses email.
func (r *RosterRepository) EmailExists(ctx context.Context, exec sqlx.ExtContext, email string) (bool, error) {
	return r.exists(ctx, exec, "SELECT 1 FROM users WHERE email = $1 LIMIT 1", email, "check email")
}

// RollNumberExists reports whether any roster, in any section, already holds the roll number.
func (r *RosterRepository) RollNumberExists(ctx context.Context, exec sqlx.ExtContext, rollNumber string) (bool, error) {
	return r.exists(ctx, exec, "SELECT 1 FROM student_enrollments WHERE roll_number = $1 LIMIT 1", rollNumber, "check roll number")
}

func (r *RosterRepository) exists(ctx context.Context, exec sqlx.ExtContext, query, arg, label string) (bool, error) {
	var found int
	if err := sqlx.GetContext(ctx, r.exec(exec), &found, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", label, err)
	}
	return true, nil
}

// CreateUser inserts a login identity.
func (r *RosterRepository) CreateUser(ctx context.Context, exec sqlx.ExtContext, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	const query = `INSERT INTO users (id, email, password_hash, full_name, first_name, last_name, phone, role, department_id, active, created_at, updated_at)
        VALUES (:id, :email, :password_hash, :full_name, :first_name, :last_name, :phone, :role, :department_id, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// CreateStudentEnrollment inserts the roster-identity row for a student.
func (r *RosterRepository) CreateStudentEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollment *models.StudentEnrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_enrollments (id, user_id, roll_number, section_id, created_at)
        VALUES (:id, :user_id, :roll_number, :section_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("create student enrollment: %w", err)
	}
	return nil
}

// CreateFacultyMember attaches a faculty login to its department roster.
func (r *RosterRepository) CreateFacultyMember(ctx context.Context, exec sqlx.ExtContext, member *models.FacultyMember) error {
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO faculty_members (id, user_id, department_id, created_at)
        VALUES (:id, :user_id, :department_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, member); err != nil {
		return fmt.Errorf("create faculty member: %w", err)
	}
	return nil
}

// Savepoint marks a point the transaction can return to after a row-level fault.
func (r *RosterRepository) Savepoint(ctx context.Context, exec sqlx.ExtContext, name string) error {
	if _, err := r.exec(exec).ExecContext(ctx, "SAVEPOINT "+pq.QuoteIdentifier(name)); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	return nil
}

// RollbackToSavepoint discards writes made since the savepoint.
func (r *RosterRepository) RollbackToSavepoint(ctx context.Context, exec sqlx.ExtContext, name string) error {
	if _, err := r.exec(exec).ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+pq.QuoteIdentifier(name)); err != nil {
		return fmt.Errorf("rollback to savepoint %s: %w", name, err)
	}
	return nil
}

// ReleaseSavepoint keeps writes made since the savepoint.
func (r *RosterRepository) ReleaseSavepoint(ctx context.Context, exec sqlx.ExtContext, name string) error {
	if _, err := r.exec(exec).ExecContext(ctx, "RELEASE SAVEPOINT "+pq.QuoteIdentifier(name)); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}
