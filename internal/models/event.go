package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	EventStatusDraft      = "draft"
	EventStatusPublished  = "published"
	EventStatusInProgress = "in_progress"
	EventStatusCompleted  = "completed"
	EventStatusCancelled  = "cancelled"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID          string `bun:"id,pk"`
	OrganizerID string `bun:"organizer_id"`
	Name        string `bun:"name,notnull"`
	Description string `bun:"description"`
	Status      string `bun:"status,notnull"`
	StartDate   time.Time `bun:"start_date,notnull"`
	EndDate     time.Time `bun:"end_date,notnull"`
	// MaxCapacity caps the total non-cancelled tickets across all ticket
	// types. Zero means the event has no capacity limit.
	MaxCapacity          int        `bun:"max_capacity"`
	RegistrationDeadline *time.Time `bun:"registration_deadline,nullzero"`
	CreatedAt            time.Time  `bun:"created_at,notnull"`
}
