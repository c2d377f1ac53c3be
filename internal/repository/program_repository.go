package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kenseikai/dojo-api/internal/models"
)

// ProgramRepository handles persistence of programs.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository constructs the repository.
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

const programColumns = `id, name, description, max_capacity, sessions_per_week, min_sessions_week,
        min_age, max_age, min_belt_rank, max_belt_rank, gender, special_needs, prerequisite_id,
        monthly_fee, yearly_fee, registration_fee, per_session_fee, active, created_at, updated_at`

// List returns programs filtered by the provided criteria.
func (r *ProgramRepository) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	orderBy := "name"
	if filter.SortBy == "created_at" {
		orderBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM programs%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		programColumns, clause, orderBy, order, size, offset)

	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list programs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM programs%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count programs: %w", err)
	}
	return programs, total, nil
}

// FindByID returns a program by its ID.
func (r *ProgramRepository) FindByID(ctx context.Context, id string) (*models.Program, error) {
	query := fmt.Sprintf(`SELECT %s FROM programs WHERE id = $1`, programColumns)
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		return nil, err
	}
	return &program, nil
}

// Create persists a new program.
func (r *ProgramRepository) Create(ctx context.Context, program *models.Program) error {
	if program.ID == "" {
		program.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	program.CreatedAt = now
	program.UpdatedAt = now
	const query = `INSERT INTO programs (id, name, description, max_capacity, sessions_per_week, min_sessions_week,
        min_age, max_age, min_belt_rank, max_belt_rank, gender, special_needs, prerequisite_id,
        monthly_fee, yearly_fee, registration_fee, per_session_fee, active, created_at, updated_at)
        VALUES (:id, :name, :description, :max_capacity, :sessions_per_week, :min_sessions_week,
        :min_age, :max_age, :min_belt_rank, :max_belt_rank, :gender, :special_needs, :prerequisite_id,
        :monthly_fee, :yearly_fee, :registration_fee, :per_session_fee, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	return nil
}

// Update overwrites mutable program fields.
func (r *ProgramRepository) Update(ctx context.Context, program *models.Program) error {
	program.UpdatedAt = time.Now().UTC()
	const query = `UPDATE programs SET name = :name, description = :description, max_capacity = :max_capacity,
        sessions_per_week = :sessions_per_week, min_sessions_week = :min_sessions_week,
        min_age = :min_age, max_age = :max_age, min_belt_rank = :min_belt_rank, max_belt_rank = :max_belt_rank,
        gender = :gender, special_needs = :special_needs, prerequisite_id = :prerequisite_id,
        monthly_fee = :monthly_fee, yearly_fee = :yearly_fee, registration_fee = :registration_fee,
        per_session_fee = :per_session_fee, active = :active, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("update program: %w", err)
	}
	return nil
}

// SetActive toggles soft deactivation. Programs are never hard-deleted while
// enrollments reference them.
func (r *ProgramRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE programs SET active = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set program active: %w", err)
	}
	return nil
}
