package models

import "time"

// DiscountEventType identifies the domain event that may trigger a discount.
type DiscountEventType string

// Event types recorded in the discount ledger.
const (
	DiscountEventEnrollmentCreated DiscountEventType = "enrollment.created"
)

// DiscountEvent is an entry in the discount-automation ledger. Events are
// recorded before rules run so processing is at-least-once.
type DiscountEvent struct {
	ID           string            `db:"id" json:"id"`
	Type         DiscountEventType `db:"type" json:"type"`
	StudentID    string            `db:"student_id" json:"student_id"`
	FamilyID     string            `db:"family_id" json:"family_id"`
	EnrollmentID string            `db:"enrollment_id" json:"enrollment_id"`
	ProcessedAt  *time.Time        `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
}

// DiscountAssignment is a coupon issued to a family by an automation rule.
type DiscountAssignment struct {
	ID         string    `db:"id" json:"id"`
	FamilyID   string    `db:"family_id" json:"family_id"`
	StudentID  *string   `db:"student_id" json:"student_id,omitempty"`
	Code       string    `db:"code" json:"code"`
	Rule       string    `db:"rule" json:"rule"`
	PercentOff int       `db:"percent_off" json:"percent_off"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
