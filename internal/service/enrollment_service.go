package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kenseikai/dojo-api/internal/models"
	appErrors "github.com/kenseikai/dojo-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	CountActiveByClass(ctx context.Context, classID string) (int, error)
	ListWaitlisted(ctx context.Context, classID string, limit int) ([]models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, at time.Time) error
	Promote(ctx context.Context, id, note string) error
}

type enrollmentClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type enrollmentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type enrollmentValidator interface {
	ValidateEnrollment(ctx context.Context, classID, studentID string) (*models.EnrollmentValidation, error)
	CheckScheduleConflicts(ctx context.Context, studentID, classID string) (*models.ScheduleConflictResult, error)
}

type enrollmentEventPublisher interface {
	PublishEnrollmentCreated(ctx context.Context, enrollment *models.Enrollment, familyID string) error
}

// EnrollStudentRequest describes enrollment creation request.
type EnrollStudentRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	ClassID   string  `json:"class_id" validate:"required"`
	Status    string  `json:"status" validate:"omitempty,oneof=active waitlist trial"`
	Notes     *string `json:"notes"`
}

// BulkEnrollRequest enrolls many students into one class.
type BulkEnrollRequest struct {
	ClassID        string   `json:"class_id" validate:"required"`
	StudentIDs     []string `json:"student_ids" validate:"required,min=1,dive,required"`
	EnrollmentType string   `json:"enrollment_type" validate:"omitempty,oneof=active waitlist trial"`
	Notes          *string  `json:"notes"`
}

// EnrollmentService orchestrates enrollment workflows: eligibility-gated
// enrollment, waitlist promotion and bulk runs.
type EnrollmentService struct {
	repo        enrollmentRepository
	classes     enrollmentClassReader
	students    enrollmentStudentReader
	eligibility enrollmentValidator
	events      enrollmentEventPublisher
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	invalidate  func(classID string)
}

// NewEnrollmentService constructs EnrollmentService. events and metrics may be
// nil, disabling discount publication and instrumentation respectively.
func NewEnrollmentService(repo enrollmentRepository, classes enrollmentClassReader, students enrollmentStudentReader, eligibility enrollmentValidator, events enrollmentEventPublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:        repo,
		classes:     classes,
		students:    students,
		eligibility: eligibility,
		events:      events,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// SetRosterInvalidator registers a callback run after every write that can
// change a class's roster.
func (s *EnrollmentService) SetRosterInvalidator(fn func(classID string)) {
	s.invalidate = fn
}

func (s *EnrollmentService) invalidateRoster(classID string) {
	if s.invalidate != nil {
		s.invalidate(classID)
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Validate previews eligibility without writing anything.
func (s *EnrollmentService) Validate(ctx context.Context, classID, studentID string) (*models.EnrollmentValidation, error) {
	return s.eligibility.ValidateEnrollment(ctx, classID, studentID)
}

// CheckConflicts exposes structured conflict detail to callers that want it.
func (s *EnrollmentService) CheckConflicts(ctx context.Context, studentID, classID string) (*models.ScheduleConflictResult, error) {
	return s.eligibility.CheckScheduleConflicts(ctx, studentID, classID)
}

// Enroll registers a student into a class, demoting to the waitlist when the
// class is full. After a successful insert it always re-runs waitlist
// promotion for the class and publishes a discount event.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	validation, err := s.eligibility.ValidateEnrollment(ctx, req.ClassID, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !validation.IsValid {
		return nil, appErrors.Clone(appErrors.ErrValidation, validation.JoinedErrors())
	}

	// The validator already checks conflicts; this second pass is kept on
	// purpose so a conflict introduced between the two reads still fails
	// with structured detail.
	conflicts, err := s.eligibility.CheckScheduleConflicts(ctx, req.StudentID, req.ClassID)
	if err != nil {
		return nil, err
	}
	if conflicts.HasConflicts {
		msg := conflictMessage(conflicts.Conflicts)
		conflictErr := appErrors.Wrap(
			&models.ScheduleConflictError{Message: msg, Conflicts: conflicts.Conflicts},
			appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, msg)
		return nil, appErrors.WithDetails(conflictErr, conflicts.Conflicts)
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	status := models.EnrollmentStatus(req.Status)
	if status == "" {
		status = models.EnrollmentStatusActive
	}
	if status == models.EnrollmentStatusActive && !validation.CapacityAvailable {
		status = models.EnrollmentStatusWaitlist
	}

	enrollment := &models.Enrollment{
		StudentID:  req.StudentID,
		ClassID:    req.ClassID,
		ProgramID:  class.ProgramID,
		Status:     status,
		Notes:      req.Notes,
		EnrolledAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}
	s.metrics.CountEnrollment(string(status))
	s.invalidateRoster(req.ClassID)

	// Promotion runs regardless of the new enrollment's own status so other
	// waitlisted rows still move up when capacity genuinely changed.
	if _, err := s.ProcessWaitlist(ctx, req.ClassID); err != nil {
		s.logger.Warn("waitlist processing after enrollment failed",
			zap.String("class_id", req.ClassID), zap.Error(err))
	}

	s.publishCreated(ctx, enrollment)

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Drop marks an enrollment dropped and frees its seat.
func (s *EnrollmentService) Drop(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	return s.finish(ctx, id, models.EnrollmentStatusDropped)
}

// Complete marks an enrollment completed and frees its seat.
func (s *EnrollmentService) Complete(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	return s.finish(ctx, id, models.EnrollmentStatusCompleted)
}

func (s *EnrollmentService) finish(ctx context.Context, id string, status models.EnrollmentStatus) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment already ended")
	}

	if err := s.repo.UpdateStatus(ctx, id, status, time.Now().UTC()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	s.invalidateRoster(enrollment.ClassID)

	// A capacity-freeing event: give waitlisted students the seat.
	if _, err := s.ProcessWaitlist(ctx, enrollment.ClassID); err != nil {
		s.logger.Warn("waitlist processing after status change failed",
			zap.String("class_id", enrollment.ClassID), zap.Error(err))
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// ProcessWaitlist promotes as many waitlisted enrollments as fit the class's
// open seats, oldest first, re-validating each candidate at promotion time.
// Deactivated classes never promote, and neither do classes with unlimited
// capacity: nothing is ever waitlisted against them. Returns the number
// actually promoted.
func (s *EnrollmentService) ProcessWaitlist(ctx context.Context, classID string) (int, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if !class.Active {
		return 0, nil
	}
	if class.MaxCapacity <= 0 {
		return 0, nil
	}

	activeCount, err := s.repo.CountActiveByClass(ctx, classID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	availableSpots := class.MaxCapacity - activeCount
	if availableSpots <= 0 {
		return 0, nil
	}

	candidates, err := s.repo.ListWaitlisted(ctx, classID, availableSpots)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list waitlist")
	}

	promoted := 0
	for _, candidate := range candidates {
		validation, err := s.eligibility.ValidateEnrollment(ctx, classID, candidate.StudentID)
		if err != nil {
			s.logger.Warn("waitlist candidate validation failed",
				zap.String("enrollment_id", candidate.ID), zap.Error(err))
			continue
		}
		// Single pass: a skipped candidate keeps its waitlist spot and no
		// further candidates are fetched to backfill.
		if !validation.CapacityAvailable || !validation.MeetsEligibility {
			continue
		}
		if err := s.repo.Promote(ctx, candidate.ID, "Promoted from waitlist"); err != nil {
			s.logger.Error("waitlist promotion failed",
				zap.String("enrollment_id", candidate.ID), zap.Error(err))
			continue
		}
		promoted++
	}
	if promoted > 0 {
		s.invalidateRoster(classID)
	}
	s.metrics.CountPromotions(promoted)
	return promoted, nil
}

// BulkEnroll applies Enroll to each student independently. Partial success is
// expected and normal; successful enrollments are never rolled back.
func (s *EnrollmentService) BulkEnroll(ctx context.Context, req BulkEnrollRequest) (*models.BulkEnrollmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk enrollment payload")
	}

	result := &models.BulkEnrollmentResult{
		Successful: []models.EnrollmentDetail{},
		Failed:     []models.BulkEnrollmentFailure{},
	}
	for _, studentID := range req.StudentIDs {
		detail, err := s.Enroll(ctx, EnrollStudentRequest{
			StudentID: studentID,
			ClassID:   req.ClassID,
			Status:    req.EnrollmentType,
			Notes:     req.Notes,
		})
		if err != nil {
			result.Failed = append(result.Failed, models.BulkEnrollmentFailure{StudentID: studentID, Error: err.Error()})
			continue
		}
		result.Successful = append(result.Successful, *detail)
	}
	return result, nil
}

// publishCreated notifies discount automation about the new enrollment. The
// event must never fail the enrollment itself; failures are logged.
func (s *EnrollmentService) publishCreated(ctx context.Context, enrollment *models.Enrollment) {
	if s.events == nil {
		return
	}
	student, err := s.students.FindByID(ctx, enrollment.StudentID)
	if err != nil {
		s.logger.Error("failed to load student for discount event",
			zap.String("enrollment_id", enrollment.ID), zap.Error(err))
		return
	}
	if err := s.events.PublishEnrollmentCreated(ctx, enrollment, student.FamilyID); err != nil {
		s.logger.Error("failed to publish enrollment event",
			zap.String("enrollment_id", enrollment.ID), zap.Error(err))
	}
}

func conflictMessage(conflicts []models.ScheduleConflict) string {
	parts := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		slot := models.ClassSchedule{DayOfWeek: c.DayOfWeek, StartMin: c.StartMin, EndMin: c.EndMin}
		parts = append(parts, fmt.Sprintf("%s (%s)", c.ClassName, slot.Window()))
	}
	return "schedule conflict with " + strings.Join(parts, ", ")
}
