package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	TicketStatusValid     = "valid"
	TicketStatusUsed      = "used"
	TicketStatusCancelled = "cancelled"
	TicketStatusExpired   = "expired"
)

// IssuedTicket is one physical ticket unit. Rows are created by the
// registration engine and only ever transition status afterwards; they are
// never deleted.
type IssuedTicket struct {
	bun.BaseModel `bun:"table:issued_tickets"`

	ID             string `bun:"id,pk"`
	RegistrationID string `bun:"registration_id,notnull"`
	TicketTypeID   string `bun:"ticket_type_id,notnull"`
	ReferenceCode  string `bun:"reference_code,notnull,unique"`
	QRPayload      string `bun:"qr_payload,notnull"`

	AttendeeName  string `bun:"attendee_name"`
	AttendeeEmail string `bun:"attendee_email,notnull"`

	Status      string     `bun:"status,notnull"`
	IssuedAt    time.Time  `bun:"issued_at,notnull"`
	CheckedInAt *time.Time `bun:"checked_in_at,nullzero"`
	CheckedInBy string     `bun:"checked_in_by"`
}
