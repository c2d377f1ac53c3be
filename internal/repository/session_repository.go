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

// SessionRepository handles persistence of class sessions and attendance.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// List returns sessions filtered by the provided criteria.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, int, error) {
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT id, class_id, date, start_min, end_min, status, created_at, updated_at
        FROM class_sessions%s ORDER BY date ASC, start_min ASC LIMIT %d OFFSET %d`, clause, size, offset)

	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM class_sessions%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// FindByID returns a session by its ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	const query = `SELECT id, class_id, date, start_min, end_min, status, created_at, updated_at
        FROM class_sessions WHERE id = $1`
	var session models.ClassSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// Create persists a new session.
func (r *SessionRepository) Create(ctx context.Context, session *models.ClassSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	const query = `INSERT INTO class_sessions (id, class_id, date, start_min, end_min, status, created_at, updated_at)
        VALUES (:id, :class_id, :date, :start_min, :end_min, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// ExistsOnDate reports whether the class already has a session at the slot.
func (r *SessionRepository) ExistsOnDate(ctx context.Context, classID string, date time.Time, startMin int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM class_sessions WHERE class_id = $1 AND date = $2 AND start_min = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, classID, date, startMin); err != nil {
		return false, fmt.Errorf("check session existence: %w", err)
	}
	return exists, nil
}

// UpdateStatus moves a session to a new lifecycle status.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	const query = `UPDATE class_sessions SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// UpsertAttendance records or overwrites a student's attendance for a session.
func (r *SessionRepository) UpsertAttendance(ctx context.Context, record *models.SessionAttendance) (*models.SessionAttendance, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.MarkedAt.IsZero() {
		record.MarkedAt = now
	}
	const query = `INSERT INTO session_attendance (id, session_id, student_id, status, notes, marked_at, created_at, updated_at)
        VALUES (:id, :session_id, :student_id, :status, :notes, :marked_at, :created_at, :updated_at)
        ON CONFLICT (session_id, student_id)
        DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, marked_at = EXCLUDED.marked_at, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return record, nil
}

// BulkUpsertAttendance writes many attendance rows. In atomic mode the whole
// batch runs in one transaction and any failure rolls everything back.
func (r *SessionRepository) BulkUpsertAttendance(ctx context.Context, records []models.SessionAttendance, atomic bool) ([]models.SessionAttendance, []error, error) {
	const query = `INSERT INTO session_attendance (id, session_id, student_id, status, notes, marked_at, created_at, updated_at)
        VALUES (:id, :session_id, :student_id, :status, :notes, :marked_at, :created_at, :updated_at)
        ON CONFLICT (session_id, student_id)
        DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, marked_at = EXCLUDED.marked_at, updated_at = EXCLUDED.updated_at`

	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].MarkedAt.IsZero() {
			records[i].MarkedAt = now
		}
		records[i].CreatedAt = now
		records[i].UpdatedAt = now
	}

	if atomic {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("begin attendance tx: %w", err)
		}
		for _, record := range records {
			if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
				_ = tx.Rollback()
				return nil, nil, fmt.Errorf("bulk attendance: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, nil, fmt.Errorf("commit attendance tx: %w", err)
		}
		return records, nil, nil
	}

	var saved []models.SessionAttendance
	var failures []error
	for _, record := range records {
		if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
			failures = append(failures, fmt.Errorf("attendance for student %s: %w", record.StudentID, err))
			continue
		}
		saved = append(saved, record)
	}
	return saved, failures, nil
}

// ListAttendance returns attendance records for a session with student info.
func (r *SessionRepository) ListAttendance(ctx context.Context, sessionID string) ([]models.SessionAttendanceRecord, error) {
	const query = `SELECT a.id, a.session_id, a.student_id, a.status, a.notes, a.marked_at, a.created_at, a.updated_at,
        s.first_name || ' ' || s.last_name AS student_name, s.belt_rank
        FROM session_attendance a
        JOIN students s ON s.id = a.student_id
        WHERE a.session_id = $1
        ORDER BY s.last_name, s.first_name`
	var records []models.SessionAttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return records, nil
}
