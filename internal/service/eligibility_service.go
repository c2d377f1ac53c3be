package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kenseikai/dojo-api/internal/models"
	appErrors "github.com/kenseikai/dojo-api/pkg/errors"
)

type eligibilityClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ListSchedules(ctx context.Context, classID string) ([]models.ClassSchedule, error)
}

type eligibilityProgramReader interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
}

type eligibilityStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type eligibilityEnrollmentReader interface {
	FindNonTerminal(ctx context.Context, studentID, classID string) (*models.Enrollment, error)
	CountActiveByClass(ctx context.Context, classID string) (int, error)
	ListActiveStudentSlots(ctx context.Context, studentID string) ([]models.ActiveScheduleSlot, error)
	HasCompleted(ctx context.Context, studentID, programID string) (bool, error)
}

// EligibilityService answers whether a student may enroll in a class. All of
// its methods are read-only and safe to call repeatedly.
type EligibilityService struct {
	classes     eligibilityClassReader
	programs    eligibilityProgramReader
	students    eligibilityStudentReader
	enrollments eligibilityEnrollmentReader
	logger      *zap.Logger
	now         func() time.Time
}

// NewEligibilityService constructs EligibilityService.
func NewEligibilityService(classes eligibilityClassReader, programs eligibilityProgramReader, students eligibilityStudentReader, enrollments eligibilityEnrollmentReader, logger *zap.Logger) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{
		classes:     classes,
		programs:    programs,
		students:    students,
		enrollments: enrollments,
		logger:      logger,
		now:         time.Now,
	}
}

// ValidateEnrollment runs every eligibility check for the student against the
// class, accumulating fatal errors and non-fatal warnings. A full class is a
// warning only: it demotes the target status to waitlist rather than blocking.
func (s *EligibilityService) ValidateEnrollment(ctx context.Context, classID, studentID string) (*models.EnrollmentValidation, error) {
	validation := &models.EnrollmentValidation{
		CapacityAvailable:   true,
		MeetsEligibility:    true,
		AgeAppropriate:      true,
		BeltRequirementsMet: true,
	}

	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if !class.Active {
		validation.Errors = append(validation.Errors, "class is not active")
		validation.MeetsEligibility = false
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	// Capacity. Zero max capacity means unlimited.
	if class.MaxCapacity > 0 {
		activeCount, err := s.enrollments.CountActiveByClass(ctx, classID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
		}
		if activeCount >= class.MaxCapacity {
			validation.CapacityAvailable = false
			validation.Warnings = append(validation.Warnings, "class is at capacity; enrollment will be waitlisted")
		}
	}

	// Duplicate enrollment. Terminal statuses never block re-enrollment.
	existing, err := s.enrollments.FindNonTerminal(ctx, studentID, classID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if existing != nil {
		switch existing.Status {
		case models.EnrollmentStatusWaitlist:
			validation.Errors = append(validation.Errors, "student is already on the waitlist for this class")
		case models.EnrollmentStatusTrial:
			validation.Errors = append(validation.Errors, "student already has a trial enrollment in this class")
		default:
			validation.Errors = append(validation.Errors, "student is already enrolled in this class")
		}
	}

	program, err := s.programs.FindByID(ctx, class.ProgramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}

	ruleErrors, err := s.evaluateProgramRules(ctx, program, student)
	if err != nil {
		return nil, err
	}
	if len(ruleErrors) > 0 {
		validation.MeetsEligibility = false
		validation.Errors = append(validation.Errors, ruleErrors...)
	}

	// Age appropriateness is recomputed here independently of the rule
	// evaluator so the flag is meaningful even for programs without bounds.
	age := student.AgeAt(s.now())
	if program.MinAge != nil && age < *program.MinAge {
		validation.AgeAppropriate = false
	}
	if program.MaxAge != nil && age > *program.MaxAge {
		validation.AgeAppropriate = false
	}

	if !effectiveBelt(student.BeltRank).Within(derefBelt(program.MinBeltRank), derefBelt(program.MaxBeltRank)) {
		validation.BeltRequirementsMet = false
	}

	conflicts, err := s.CheckScheduleConflicts(ctx, studentID, classID)
	if err != nil {
		return nil, err
	}
	if conflicts.HasConflicts {
		validation.MeetsEligibility = false
		for _, conflict := range conflicts.Conflicts {
			slot := models.ClassSchedule{DayOfWeek: conflict.DayOfWeek, StartMin: conflict.StartMin, EndMin: conflict.EndMin}
			validation.Errors = append(validation.Errors,
				fmt.Sprintf("schedule conflict with %s (%s)", conflict.ClassName, slot.Window()))
		}
	}

	validation.IsValid = len(validation.Errors) == 0
	return validation, nil
}

// CheckScheduleConflicts finds overlaps between the candidate class's weekly
// slots and the student's existing active enrollments. Waitlisted and dropped
// enrollments never produce conflicts.
func (s *EligibilityService) CheckScheduleConflicts(ctx context.Context, studentID, classID string) (*models.ScheduleConflictResult, error) {
	candidateSlots, err := s.classes.ListSchedules(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class schedules")
	}

	heldSlots, err := s.enrollments.ListActiveStudentSlots(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student schedules")
	}

	result := &models.ScheduleConflictResult{Conflicts: []models.ScheduleConflict{}}
	for _, held := range heldSlots {
		if held.ClassID == classID {
			continue
		}
		heldSchedule := models.ClassSchedule{DayOfWeek: held.DayOfWeek, StartMin: held.StartMin, EndMin: held.EndMin}
		for _, candidate := range candidateSlots {
			if !candidate.Overlaps(heldSchedule) {
				continue
			}
			result.Conflicts = append(result.Conflicts, models.ScheduleConflict{
				EnrollmentID: held.EnrollmentID,
				ClassID:      held.ClassID,
				ClassName:    held.ClassName,
				DayOfWeek:    held.DayOfWeek,
				StartMin:     maxInt(candidate.StartMin, held.StartMin),
				EndMin:       minInt(candidate.EndMin, held.EndMin),
			})
		}
	}
	result.HasConflicts = len(result.Conflicts) > 0
	return result, nil
}

func (s *EligibilityService) evaluateProgramRules(ctx context.Context, program *models.Program, student *models.Student) ([]string, error) {
	var ruleErrors []string

	if !program.Active {
		ruleErrors = append(ruleErrors, "program is not active")
	}

	age := student.AgeAt(s.now())
	if program.MinAge != nil && age < *program.MinAge {
		ruleErrors = append(ruleErrors, fmt.Sprintf("student must be at least %d years old", *program.MinAge))
	}
	if program.MaxAge != nil && age > *program.MaxAge {
		ruleErrors = append(ruleErrors, fmt.Sprintf("student must be at most %d years old", *program.MaxAge))
	}

	belt := effectiveBelt(student.BeltRank)
	if !belt.Within(derefBelt(program.MinBeltRank), derefBelt(program.MaxBeltRank)) {
		if program.MinBeltRank != nil && belt.Ordinal() < program.MinBeltRank.Ordinal() {
			ruleErrors = append(ruleErrors, fmt.Sprintf("student must hold at least a %s belt", *program.MinBeltRank))
		} else {
			ruleErrors = append(ruleErrors, "student's belt rank is above this program's range")
		}
	}

	if program.Gender != "" && program.Gender != models.GenderAny && student.Gender != string(program.Gender) {
		ruleErrors = append(ruleErrors, "student does not meet the program's gender restriction")
	}

	if program.SpecialNeeds && !student.SpecialNeeds {
		ruleErrors = append(ruleErrors, "program is reserved for special-needs students")
	}

	if program.PrerequisiteID != nil && *program.PrerequisiteID != "" {
		completed, err := s.enrollments.HasCompleted(ctx, student.ID, *program.PrerequisiteID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prerequisites")
		}
		if !completed {
			ruleErrors = append(ruleErrors, "student has not completed the prerequisite program")
		}
	}

	return ruleErrors, nil
}

func derefBelt(rank *models.BeltRank) models.BeltRank {
	if rank == nil {
		return ""
	}
	return *rank
}

// effectiveBelt maps an unranked student to white belt so programs without
// belt bounds accept them and min-belt checks compare against the bottom of
// the ladder.
func effectiveBelt(rank models.BeltRank) models.BeltRank {
	if rank == "" {
		return models.BeltWhite
	}
	return rank
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
