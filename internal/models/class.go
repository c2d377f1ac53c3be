package models

import (
	"fmt"
	"time"
)

// Class represents a scheduled instance of a program.
type Class struct {
	ID           string    `db:"id" json:"id"`
	ProgramID    string    `db:"program_id" json:"program_id"`
	Name         string    `db:"name" json:"name"`
	InstructorID *string   `db:"instructor_id" json:"instructor_id,omitempty"`
	MaxCapacity  int       `db:"max_capacity" json:"max_capacity"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with program and instructor context.
type ClassDetail struct {
	Class
	ProgramName    string  `db:"program_name" json:"program_name"`
	InstructorName *string `db:"instructor_name" json:"instructor_name,omitempty"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	ProgramID    string
	InstructorID string
	Search       string
	Active       *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// ClassSchedule is a weekly time slot for a class. Times are minutes since
// midnight so interval arithmetic stays integer.
type ClassSchedule struct {
	ID        string       `db:"id" json:"id"`
	ClassID   string       `db:"class_id" json:"class_id"`
	DayOfWeek time.Weekday `db:"day_of_week" json:"day_of_week"`
	StartMin  int          `db:"start_min" json:"start_min"`
	EndMin    int          `db:"end_min" json:"end_min"`
}

// Overlaps reports whether two weekly slots collide. Intervals are half-open,
// so back-to-back slots do not overlap.
func (s ClassSchedule) Overlaps(other ClassSchedule) bool {
	if s.DayOfWeek != other.DayOfWeek {
		return false
	}
	return s.StartMin < other.EndMin && other.StartMin < s.EndMin
}

// Window renders the slot as "Mon 17:00-18:30" for messages.
func (s ClassSchedule) Window() string {
	return fmt.Sprintf("%s %02d:%02d-%02d:%02d",
		s.DayOfWeek.String()[:3], s.StartMin/60, s.StartMin%60, s.EndMin/60, s.EndMin%60)
}

// ClassRoster summarises enrollment occupancy for a class.
type ClassRoster struct {
	Class         ClassDetail        `json:"class"`
	ActiveCount   int                `json:"active_count"`
	WaitlistCount int                `json:"waitlist_count"`
	Enrollments   []EnrollmentDetail `json:"enrollments"`
}
