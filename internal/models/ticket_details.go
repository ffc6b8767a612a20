package models

import "time"

// TicketDetails is the read-only view returned by lookup, validation and
// check-in responses.
type TicketDetails struct {
	ReferenceCode  string     `json:"reference_code"`
	AttendeeName   string     `json:"attendee_name"`
	AttendeeEmail  string     `json:"attendee_email"`
	EventName      string     `json:"event_name"`
	EventStart     time.Time  `json:"event_start"`
	TicketTypeName string     `json:"ticket_type_name"`
	Status         string     `json:"status"`
	CheckedInAt    *time.Time `json:"checked_in_at,omitempty"`
	CheckedInBy    string     `json:"checked_in_by,omitempty"`
}
