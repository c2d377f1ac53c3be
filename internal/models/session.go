package models

import "time"

// SessionStatus is the lifecycle state of a dated class occurrence.
type SessionStatus string

// Possible session statuses.
const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Valid returns true when the status is a supported value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusCompleted, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// ClassSession is a dated occurrence of a class generated from its weekly
// schedule.
type ClassSession struct {
	ID        string        `db:"id" json:"id"`
	ClassID   string        `db:"class_id" json:"class_id"`
	Date      time.Time     `db:"date" json:"date"`
	StartMin  int           `db:"start_min" json:"start_min"`
	EndMin    int           `db:"end_min" json:"end_min"`
	Status    SessionStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// StartTime resolves the session's wall-clock start in the given location.
func (s ClassSession) StartTime(loc *time.Location) time.Time {
	d := s.Date
	return time.Date(d.Year(), d.Month(), d.Day(), s.StartMin/60, s.StartMin%60, 0, 0, loc)
}

// SessionFilter defines query filters for listing sessions.
type SessionFilter struct {
	ClassID  string
	Status   SessionStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}
