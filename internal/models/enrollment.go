package models

import (
	"strings"
	"time"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Dropped, completed and inactive are terminal
// and never block re-enrollment.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusInactive  EnrollmentStatus = "inactive"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusWaitlist  EnrollmentStatus = "waitlist"
	EnrollmentStatusTrial     EnrollmentStatus = "trial"
)

// Valid returns true when the status is a supported value.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusActive, EnrollmentStatusInactive, EnrollmentStatusDropped,
		EnrollmentStatusCompleted, EnrollmentStatusWaitlist, EnrollmentStatusTrial:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status ends the enrollment lifecycle.
func (s EnrollmentStatus) Terminal() bool {
	switch s {
	case EnrollmentStatusDropped, EnrollmentStatusCompleted, EnrollmentStatusInactive:
		return true
	default:
		return false
	}
}

// Enrollment links a student to a class. ProgramID is denormalized from the
// class for reporting queries.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	ClassID     string           `db:"class_id" json:"class_id"`
	ProgramID   string           `db:"program_id" json:"program_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	Notes       *string          `db:"notes" json:"notes,omitempty"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	DroppedAt   *time.Time       `db:"dropped_at" json:"dropped_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and class info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	ClassName   string `db:"class_name" json:"class_name"`
	ProgramName string `db:"program_name" json:"program_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	ClassID   string
	ProgramID string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// EnrollmentValidation aggregates the outcome of every eligibility check for
// a prospective enrollment. Warnings never affect validity.
type EnrollmentValidation struct {
	IsValid             bool     `json:"is_valid"`
	Errors              []string `json:"errors"`
	Warnings            []string `json:"warnings"`
	CapacityAvailable   bool     `json:"capacity_available"`
	MeetsEligibility    bool     `json:"meets_eligibility"`
	AgeAppropriate      bool     `json:"age_appropriate"`
	BeltRequirementsMet bool     `json:"belt_requirements_met"`
}

// JoinedErrors renders all validation errors as a single message.
func (v EnrollmentValidation) JoinedErrors() string {
	return strings.Join(v.Errors, "; ")
}

// ScheduleConflict names an overlap between a candidate class and an existing
// active enrollment's weekly slot.
type ScheduleConflict struct {
	EnrollmentID string       `json:"enrollment_id"`
	ClassID      string       `json:"class_id"`
	ClassName    string       `json:"class_name"`
	DayOfWeek    time.Weekday `json:"day_of_week"`
	StartMin     int          `json:"start_min"`
	EndMin       int          `json:"end_min"`
}

// ActiveScheduleSlot is a weekly slot held by one of a student's active
// enrollments, used by conflict detection.
type ActiveScheduleSlot struct {
	EnrollmentID string       `db:"enrollment_id" json:"enrollment_id"`
	ClassID      string       `db:"class_id" json:"class_id"`
	ClassName    string       `db:"class_name" json:"class_name"`
	DayOfWeek    time.Weekday `db:"day_of_week" json:"day_of_week"`
	StartMin     int          `db:"start_min" json:"start_min"`
	EndMin       int          `db:"end_min" json:"end_min"`
}

// ScheduleConflictResult is the detector outcome.
type ScheduleConflictResult struct {
	HasConflicts bool               `json:"has_conflicts"`
	Conflicts    []ScheduleConflict `json:"conflicts"`
}

// ScheduleConflictError is returned when an enrollment collides with the
// student's existing weekly commitments.
type ScheduleConflictError struct {
	Message   string             `json:"message"`
	Conflicts []ScheduleConflict `json:"conflicts"`
}

// Error implements the error interface.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// BulkEnrollmentFailure records a single failed student in a bulk operation.
type BulkEnrollmentFailure struct {
	StudentID string `json:"student_id"`
	Error     string `json:"error"`
}

// BulkEnrollmentResult summarises a bulk enrollment run.
type BulkEnrollmentResult struct {
	Successful []EnrollmentDetail      `json:"successful"`
	Failed     []BulkEnrollmentFailure `json:"failed"`
}
