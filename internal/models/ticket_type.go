package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	ID           string     `bun:"id,pk"`
	EventID      string     `bun:"event_id,notnull"`
	Name         string     `bun:"name,notnull"`
	Price        float64    `bun:"price"`
	Quantity     int        `bun:"total_quantity,notnull"`
	Sold         int        `bun:"sold_quantity,notnull"`
	SalesStartAt *time.Time `bun:"sales_start_at,nullzero"`
	SalesEndAt   *time.Time `bun:"sales_end_at,nullzero"`
	IsActive     bool       `bun:"is_active"`
	DisplayOrder int        `bun:"display_order"`
}

// Available reports how many units are left for sale, clamped at zero.
func (t *TicketType) Available() int {
	if t.Sold >= t.Quantity {
		return 0
	}
	return t.Quantity - t.Sold
}

// SaleOpen reports whether the sale window is open at the given instant.
// Unset bounds leave that side of the window open.
func (t *TicketType) SaleOpen(now time.Time) bool {
	if t.SalesStartAt != nil && now.Before(*t.SalesStartAt) {
		return false
	}
	if t.SalesEndAt != nil && now.After(*t.SalesEndAt) {
		return false
	}
	return true
}
