package models

import "time"

// TicketPayload is the plaintext form of the encrypted QR token. It is never
// persisted as a row; it only exists inside the opaque QR string.
type TicketPayload struct {
	RegistrationID string    `json:"registration_id"`
	TicketTypeID   string    `json:"ticket_type_id"`
	AttendeeEmail  string    `json:"attendee_email"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Signature      string    `json:"signature"`
}
