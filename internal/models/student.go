package models

import "time"

// Family is the household that owns one or more students.
type Family struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	Address   string    `db:"address" json:"address"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Student represents a learner registered at the dojo.
type Student struct {
	ID           string    `db:"id" json:"id"`
	FamilyID     string    `db:"family_id" json:"family_id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Gender       string    `db:"gender" json:"gender"`
	BirthDate    time.Time `db:"birth_date" json:"birth_date"`
	BeltRank     BeltRank  `db:"belt_rank" json:"belt_rank"`
	SpecialNeeds bool      `db:"special_needs" json:"special_needs"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns the display name for rosters and messages.
func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// AgeAt computes the student's whole-year age at the given date, rolling the
// year back when the birthday has not yet occurred.
func (s Student) AgeAt(at time.Time) int {
	age := at.Year() - s.BirthDate.Year()
	anniversary := time.Date(at.Year(), s.BirthDate.Month(), s.BirthDate.Day(), 0, 0, 0, 0, at.Location())
	if at.Before(anniversary) {
		age--
	}
	return age
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	FamilyID  string
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StudentDetail contains student information with family context.
type StudentDetail struct {
	Student
	FamilyName string `db:"family_name" json:"family_name"`
}
