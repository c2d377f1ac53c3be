package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kenseikai/dojo-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `e.id, e.student_id, e.class_id, e.program_id, e.status, e.notes, e.enrolled_at, e.completed_at, e.dropped_at`

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN classes c ON c.id = e.class_id
LEFT JOIN programs p ON p.id = e.program_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.ProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("e.program_id = $%d", len(args)+1))
		args = append(args, filter.ProgramID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "s.last_name",
		"class_name":   "c.name",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "enrolled_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT %s,
        s.first_name || ' ' || s.last_name AS student_name, c.name AS class_name, p.name AS program_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, enrollmentColumns, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e WHERE e.id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s,
        s.first_name || ' ' || s.last_name AS student_name, c.name AS class_name, p.name AS program_name
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN classes c ON c.id = e.class_id
        LEFT JOIN programs p ON p.id = e.program_id
        WHERE e.id = $1`, enrollmentColumns)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindNonTerminal returns the student's active, waitlisted or trial enrollment
// in the class, or sql.ErrNoRows.
func (r *EnrollmentRepository) FindNonTerminal(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e
        WHERE e.student_id = $1 AND e.class_id = $2 AND e.status IN ($3, $4, $5)
        LIMIT 1`, enrollmentColumns)
	var enrollment models.Enrollment
	err := r.db.GetContext(ctx, &enrollment, query, studentID, classID,
		models.EnrollmentStatusActive, models.EnrollmentStatusWaitlist, models.EnrollmentStatusTrial)
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// CountActiveByClass counts enrollments holding a seat in the class.
func (r *EnrollmentRepository) CountActiveByClass(ctx context.Context, classID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, classID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// ListActiveByStudent returns the student's active enrollments across classes.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e WHERE e.student_id = $1 AND e.status = $2`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ListActiveStudentSlots returns every weekly slot held by the student's
// active enrollments, for schedule-conflict detection.
func (r *EnrollmentRepository) ListActiveStudentSlots(ctx context.Context, studentID string) ([]models.ActiveScheduleSlot, error) {
	const query = `SELECT e.id AS enrollment_id, c.id AS class_id, c.name AS class_name,
        cs.day_of_week, cs.start_min, cs.end_min
        FROM enrollments e
        JOIN classes c ON c.id = e.class_id
        JOIN class_schedules cs ON cs.class_id = c.id
        WHERE e.student_id = $1 AND e.status = $2`
	var slots []models.ActiveScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, studentID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active schedule slots: %w", err)
	}
	return slots, nil
}

// ListWaitlisted returns up to limit waitlisted enrollments for the class in
// FIFO order by enrollment timestamp.
func (r *EnrollmentRepository) ListWaitlisted(ctx context.Context, classID string, limit int) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e
        WHERE e.class_id = $1 AND e.status = $2
        ORDER BY e.enrolled_at ASC LIMIT $3`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, classID, models.EnrollmentStatusWaitlist, limit); err != nil {
		return nil, fmt.Errorf("list waitlisted enrollments: %w", err)
	}
	return enrollments, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, student_id, class_id, program_id, status, notes, enrolled_at, completed_at, dropped_at)
        VALUES (:id, :student_id, :class_id, :program_id, :status, :notes, :enrolled_at, :completed_at, :dropped_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus moves an enrollment to a new status, stamping the matching
// lifecycle timestamp.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, at time.Time) error {
	var query string
	switch status {
	case models.EnrollmentStatusCompleted:
		query = `UPDATE enrollments SET status = $2, completed_at = $3 WHERE id = $1`
	case models.EnrollmentStatusDropped:
		query = `UPDATE enrollments SET status = $2, dropped_at = $3 WHERE id = $1`
	default:
		query = `UPDATE enrollments SET status = $2 WHERE id = $1`
		if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
			return fmt.Errorf("update enrollment status: %w", err)
		}
		return nil
	}
	if _, err := r.db.ExecContext(ctx, query, id, status, at); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// Promote moves a waitlisted enrollment to active, appending the given note.
func (r *EnrollmentRepository) Promote(ctx context.Context, id, note string) error {
	const query = `UPDATE enrollments
        SET status = $2, notes = CASE WHEN notes IS NULL OR notes = '' THEN $3 ELSE notes || '; ' || $3 END
        WHERE id = $1 AND status = $4`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusActive, note, models.EnrollmentStatusWaitlist); err != nil {
		return fmt.Errorf("promote enrollment: %w", err)
	}
	return nil
}

// HasCompleted reports whether the student completed any enrollment in the
// given program, for prerequisite checks.
func (r *EnrollmentRepository) HasCompleted(ctx context.Context, studentID, programID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND program_id = $2 AND status = $3 LIMIT 1`
	var one int
	err := r.db.GetContext(ctx, &one, query, studentID, programID, models.EnrollmentStatusCompleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check completed enrollment: %w", err)
	}
	return true, nil
}

// CountEnrolledStudentsByFamily counts distinct students in the family that
// hold an active enrollment. Used by discount automation.
func (r *EnrollmentRepository) CountEnrolledStudentsByFamily(ctx context.Context, familyID string) (int, error) {
	const query = `SELECT COUNT(DISTINCT e.student_id) FROM enrollments e
        JOIN students s ON s.id = e.student_id
        WHERE s.family_id = $1 AND e.status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, familyID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count family enrollments: %w", err)
	}
	return count, nil
}

// CountByFamily counts all enrollments ever recorded for students in the family.
func (r *EnrollmentRepository) CountByFamily(ctx context.Context, familyID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments e
        JOIN students s ON s.id = e.student_id
        WHERE s.family_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, familyID); err != nil {
		return 0, fmt.Errorf("count family enrollment history: %w", err)
	}
	return count, nil
}
