package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	RegistrationStatusConfirmed = "confirmed"
	RegistrationStatusCheckedIn = "checked_in"
	RegistrationStatusCancelled = "cancelled"
)

// AttendeeInfo is the contact snapshot captured at registration time. It is
// stored on the registration and on every issued ticket, independent of the
// user's own profile.
type AttendeeInfo struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Organization string `json:"organization,omitempty"`
}

type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	ID      string `bun:"id,pk"`
	EventID string `bun:"event_id,notnull"`
	UserID  string `bun:"user_id,notnull"`
	Status  string `bun:"status,notnull"`

	AttendeeName  string `bun:"attendee_name,notnull"`
	AttendeeEmail string `bun:"attendee_email,notnull"`
	AttendeePhone string `bun:"attendee_phone"`
	AttendeeOrg   string `bun:"attendee_org"`

	CancelledAt  *time.Time `bun:"cancelled_at,nullzero"`
	CancelledBy  string     `bun:"cancelled_by"`
	CancelReason string     `bun:"cancel_reason"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
}
