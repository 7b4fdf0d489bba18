package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/roster-import-api/internal/models"
)

// ScopeRepository reads the sections and departments that rosters are imported into.
type ScopeRepository struct {
	db *sqlx.DB
}

// NewScopeRepository constructs a ScopeRepository.
func NewScopeRepository(db *sqlx.DB) *ScopeRepository {
	return &ScopeRepository{db: db}
}

// FindSection returns a section by ID. A missing row yields sql.ErrNoRows.
func (r *ScopeRepository) FindSection(ctx context.Context, id string) (*models.Section, error) {
	const query = `SELECT id, name, department_id FROM sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find section: %w", err)
	}
	return &section, nil
}

// FindDepartment returns a department by ID. A missing row yields sql.ErrNoRows.
func (r *ScopeRepository) FindDepartment(ctx context.Context, id string) (*models.Department, error) {
	const query = `SELECT id, name, code FROM departments WHERE id = $1`
	var department models.Department
	if err := r.db.GetContext(ctx, &department, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find department: %w", err)
	}
	return &department, nil
}
