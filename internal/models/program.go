package models

import "time"

// GenderRestriction limits a program to a single gender when set.
type GenderRestriction string

// Supported gender restrictions. "any" disables the check.
const (
	GenderAny    GenderRestriction = "any"
	GenderMale   GenderRestriction = "male"
	GenderFemale GenderRestriction = "female"
)

// Program represents a course offering such as "Little Dragons" or "Adult Kumite".
type Program struct {
	ID              string            `db:"id" json:"id"`
	Name            string            `db:"name" json:"name"`
	Description     string            `db:"description" json:"description"`
	MaxCapacity     int               `db:"max_capacity" json:"max_capacity"`
	SessionsPerWeek int               `db:"sessions_per_week" json:"sessions_per_week"`
	MinSessionsWeek int               `db:"min_sessions_week" json:"min_sessions_week"`
	MinAge          *int              `db:"min_age" json:"min_age,omitempty"`
	MaxAge          *int              `db:"max_age" json:"max_age,omitempty"`
	MinBeltRank     *BeltRank         `db:"min_belt_rank" json:"min_belt_rank,omitempty"`
	MaxBeltRank     *BeltRank         `db:"max_belt_rank" json:"max_belt_rank,omitempty"`
	Gender          GenderRestriction `db:"gender" json:"gender"`
	SpecialNeeds    bool              `db:"special_needs" json:"special_needs"`
	PrerequisiteID  *string           `db:"prerequisite_id" json:"prerequisite_id,omitempty"`
	MonthlyFee      int64             `db:"monthly_fee" json:"monthly_fee"`
	YearlyFee       int64             `db:"yearly_fee" json:"yearly_fee"`
	RegistrationFee int64             `db:"registration_fee" json:"registration_fee"`
	PerSessionFee   int64             `db:"per_session_fee" json:"per_session_fee"`
	Active          bool              `db:"active" json:"active"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// ProgramFilter defines filter criteria for listing programs.
type ProgramFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
