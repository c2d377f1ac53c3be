package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kenseikai/dojo-api/internal/models"
	"github.com/kenseikai/dojo-api/pkg/config"
	appErrors "github.com/kenseikai/dojo-api/pkg/errors"
)

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
	Create(ctx context.Context, session *models.ClassSession) error
	ExistsOnDate(ctx context.Context, classID string, date time.Time, startMin int) (bool, error)
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error
	UpsertAttendance(ctx context.Context, record *models.SessionAttendance) (*models.SessionAttendance, error)
	BulkUpsertAttendance(ctx context.Context, records []models.SessionAttendance, atomic bool) ([]models.SessionAttendance, []error, error)
	ListAttendance(ctx context.Context, sessionID string) ([]models.SessionAttendanceRecord, error)
}

type sessionScheduleReader interface {
	ListSchedules(ctx context.Context, classID string) ([]models.ClassSchedule, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// GenerateSessionsRequest expands a class's weekly schedule into dated
// sessions over an inclusive date range.
type GenerateSessionsRequest struct {
	ClassID  string `json:"class_id" validate:"required"`
	DateFrom string `json:"date_from" validate:"required"`
	DateTo   string `json:"date_to" validate:"required"`
}

// MarkAttendanceRequest records one student's attendance for a session.
type MarkAttendanceRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required,oneof=present absent late excused"`
	Notes     *string `json:"notes"`
}

// BulkAttendanceRequest records attendance for many students at once.
type BulkAttendanceRequest struct {
	Mode    string                  `json:"mode" validate:"omitempty,oneof=atomic partialOnError"`
	Records []MarkAttendanceRequest `json:"records" validate:"required,min=1,dive"`
}

// BulkAttendanceResult reports what a bulk attendance write achieved.
type BulkAttendanceResult struct {
	Saved  []models.SessionAttendance `json:"saved"`
	Errors []string                   `json:"errors,omitempty"`
}

// SessionService generates dated class sessions from weekly schedules and
// records attendance against them.
type SessionService struct {
	repo      sessionRepository
	classes   sessionScheduleReader
	cfg       config.AttendanceConfig
	loc       *time.Location
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

func NewSessionService(repo sessionRepository, classes sessionScheduleReader, cfg config.AttendanceConfig, loc *time.Location, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SessionService{
		repo:      repo,
		classes:   classes,
		cfg:       cfg,
		loc:       loc,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, *models.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Generate walks every day of the range and creates a session for each weekly
// slot landing on that day. Already-existing sessions for the same class,
// date and start time are skipped, so re-running the same range is safe.
func (s *SessionService) Generate(ctx context.Context, req GenerateSessionsRequest) ([]models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}
	from, err := time.ParseInLocation("2006-01-02", req.DateFrom, s.loc)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_from must be YYYY-MM-DD")
	}
	to, err := time.ParseInLocation("2006-01-02", req.DateTo, s.loc)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_to must be YYYY-MM-DD")
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_to must not be before date_from")
	}

	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	schedules, err := s.classes.ListSchedules(ctx, req.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	if len(schedules) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "class has no weekly schedule")
	}

	byDay := make(map[time.Weekday][]models.ClassSchedule)
	for _, slot := range schedules {
		byDay[slot.DayOfWeek] = append(byDay[slot.DayOfWeek], slot)
	}

	var created []models.ClassSession
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, slot := range byDay[day.Weekday()] {
			exists, err := s.repo.ExistsOnDate(ctx, req.ClassID, day, slot.StartMin)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing sessions")
			}
			if exists {
				continue
			}
			session := &models.ClassSession{
				ClassID:  req.ClassID,
				Date:     day,
				StartMin: slot.StartMin,
				EndMin:   slot.EndMin,
				Status:   models.SessionStatusScheduled,
			}
			if err := s.repo.Create(ctx, session); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
			}
			created = append(created, *session)
		}
	}
	s.logger.Info("sessions generated",
		zap.String("class_id", req.ClassID),
		zap.Int("count", len(created)))
	return created, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*models.ClassSession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// SetStatus transitions the session lifecycle (scheduled, completed,
// cancelled). Cancelled sessions refuse attendance writes.
func (s *SessionService) SetStatus(ctx context.Context, id string, status models.SessionStatus) (*models.ClassSession, error) {
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown session status: "+string(status))
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session status")
	}
	return s.Get(ctx, id)
}

// MarkAttendance upserts a single attendance record. A present mark recorded
// after the session start plus the configured grace period is stored as late.
func (s *SessionService) MarkAttendance(ctx context.Context, sessionID string, req MarkAttendanceRequest) (*models.SessionAttendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	record, err := s.buildRecord(session, req)
	if err != nil {
		return nil, err
	}
	saved, err := s.repo.UpsertAttendance(ctx, record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}
	s.metrics.CountAttendance(string(saved.Status))
	return saved, nil
}

// MarkAttendanceBulk writes many records in one call. Atomic mode rolls the
// whole batch back on any failure; partialOnError keeps what succeeded and
// reports the rest.
func (s *SessionService) MarkAttendanceBulk(ctx context.Context, sessionID string, req BulkAttendanceRequest) (*BulkAttendanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	records := make([]models.SessionAttendance, 0, len(req.Records))
	for _, r := range req.Records {
		record, err := s.buildRecord(session, r)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	mode := models.BulkOperationMode(req.Mode)
	if mode == "" {
		mode = models.BulkModeAtomic
	}
	saved, failures, err := s.repo.BulkUpsertAttendance(ctx, records, mode == models.BulkModeAtomic)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance batch")
	}
	result := &BulkAttendanceResult{Saved: saved}
	for _, f := range failures {
		result.Errors = append(result.Errors, f.Error())
	}
	for _, rec := range saved {
		s.metrics.CountAttendance(string(rec.Status))
	}
	return result, nil
}

// Attendance lists the session's attendance records with student context.
func (s *SessionService) Attendance(ctx context.Context, sessionID string) ([]models.SessionAttendanceRecord, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	records, err := s.repo.ListAttendance(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, nil
}

func (s *SessionService) buildRecord(session *models.ClassSession, req MarkAttendanceRequest) (*models.SessionAttendance, error) {
	if session.Status == models.SessionStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot mark attendance on a cancelled session")
	}
	status := models.AttendanceStatus(req.Status)
	markedAt := s.now().UTC()
	if status == models.AttendanceStatusPresent {
		deadline := session.StartTime(s.loc).Add(s.cfg.LateGrace)
		if markedAt.After(deadline) {
			status = models.AttendanceStatusLate
		}
	}
	return &models.SessionAttendance{
		SessionID: session.ID,
		StudentID: req.StudentID,
		Status:    status,
		Notes:     req.Notes,
		MarkedAt:  markedAt,
	}, nil
}
