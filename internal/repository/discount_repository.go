package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kenseikai/dojo-api/internal/models"
)

// DiscountRepository persists the discount event ledger and issued coupons.
type DiscountRepository struct {
	db *sqlx.DB
}

// NewDiscountRepository constructs the repository.
func NewDiscountRepository(db *sqlx.DB) *DiscountRepository {
	return &DiscountRepository{db: db}
}

// RecordEvent appends a domain event to the ledger.
func (r *DiscountRepository) RecordEvent(ctx context.Context, event *models.DiscountEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO discount_events (id, type, student_id, family_id, enrollment_id, processed_at, created_at)
        VALUES (:id, :type, :student_id, :family_id, :enrollment_id, :processed_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("record discount event: %w", err)
	}
	return nil
}

// MarkProcessed stamps the event as handled.
func (r *DiscountRepository) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	const query = `UPDATE discount_events SET processed_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, eventID, at); err != nil {
		return fmt.Errorf("mark discount event processed: %w", err)
	}
	return nil
}

// HasAssignment reports whether the family already holds a coupon issued by
// the given rule. Rules issue at most one coupon per family.
func (r *DiscountRepository) HasAssignment(ctx context.Context, familyID, rule string) (bool, error) {
	const query = `SELECT 1 FROM discount_assignments WHERE family_id = $1 AND rule = $2 LIMIT 1`
	var one int
	err := r.db.GetContext(ctx, &one, query, familyID, rule)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check discount assignment: %w", err)
	}
	return true, nil
}

// CreateAssignment issues a coupon to a family.
func (r *DiscountRepository) CreateAssignment(ctx context.Context, assignment *models.DiscountAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO discount_assignments (id, family_id, student_id, code, rule, percent_off, expires_at, created_at)
        VALUES (:id, :family_id, :student_id, :code, :rule, :percent_off, :expires_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create discount assignment: %w", err)
	}
	return nil
}

// ListAssignmentsByFamily returns coupons issued to a family, newest first.
func (r *DiscountRepository) ListAssignmentsByFamily(ctx context.Context, familyID string) ([]models.DiscountAssignment, error) {
	const query = `SELECT id, family_id, student_id, code, rule, percent_off, expires_at, created_at
        FROM discount_assignments WHERE family_id = $1 ORDER BY created_at DESC`
	var assignments []models.DiscountAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, familyID); err != nil {
		return nil, fmt.Errorf("list discount assignments: %w", err)
	}
	return assignments, nil
}
