package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-eventreg/internal/apperr"
	"ms-eventreg/internal/logger"
	"ms-eventreg/internal/models"
)

// Ledger enforces the per-type and per-event capacity invariants. Every
// method takes a bun.IDB so callers can run it inside their own transaction;
// mutual exclusion comes from conditional updates, never read-then-write.
type Ledger struct {
	Log *logger.Logger
}

func NewLedger(log *logger.Logger) *Ledger {
	return &Ledger{Log: log}
}

// ReserveUnits increments sold_quantity by qty in a single conditional
// update: it succeeds only when the type is active, inside its sale window
// and has qty units left. Exactly one affected row means the reservation
// took; zero rows means some guard failed and the row is re-read to report
// which one.
func (l *Ledger) ReserveUnits(ctx context.Context, idb bun.IDB, ticketTypeID string, qty int) error {
	if qty <= 0 {
		return apperr.New(apperr.Validation, "ticket quantity must be positive")
	}

	now := time.Now().UTC()
	res, err := idb.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("sold_quantity = sold_quantity + ?", qty).
		Where("id = ?", ticketTypeID).
		Where("is_active = ?", true).
		Where("sold_quantity + ? <= total_quantity", qty).
		Where("(sales_start_at IS NULL OR sales_start_at <= ?)", now).
		Where("(sales_end_at IS NULL OR sales_end_at >= ?)", now).
		Exec(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to reserve inventory", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to reserve inventory", err)
	}
	if rows == 1 {
		return nil
	}

	return l.classifyReserveFailure(ctx, idb, ticketTypeID, qty, now)
}

// classifyReserveFailure re-reads the row purely to produce a precise error;
// the reservation itself already failed atomically.
func (l *Ledger) classifyReserveFailure(ctx context.Context, idb bun.IDB, ticketTypeID string, qty int, now time.Time) error {
	var tt models.TicketType
	err := idb.NewSelect().
		Model(&tt).
		Where("id = ?", ticketTypeID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.NotFound, "ticket type not found")
		}
		return apperr.Wrap(apperr.Internal, "failed to load ticket type", err)
	}

	switch {
	case !tt.IsActive:
		return apperr.Newf(apperr.Validation, "ticket type %q is not on sale", tt.Name)
	case !tt.SaleOpen(now):
		return apperr.Newf(apperr.Validation, "sale window for %q is closed", tt.Name)
	default:
		return apperr.Newf(apperr.Validation,
			"insufficient inventory for %q: %d requested, %d available", tt.Name, qty, tt.Available())
	}
}

// ReleaseUnits returns qty units to the pool, flooring sold_quantity at
// zero. The cancellation engine calls this exactly once per ticket-type
// group being cancelled.
func (l *Ledger) ReleaseUnits(ctx context.Context, idb bun.IDB, ticketTypeID string, qty int) error {
	if qty <= 0 {
		return nil
	}

	res, err := idb.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("sold_quantity = CASE WHEN sold_quantity >= ? THEN sold_quantity - ? ELSE 0 END", qty, qty).
		Where("id = ?", ticketTypeID).
		Exec(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to release inventory", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return apperr.New(apperr.NotFound, "ticket type not found")
	}

	if l.Log != nil {
		l.Log.LogInventory("RELEASE", ticketTypeID, fmt.Sprintf("returned %d units", qty))
	}
	return nil
}

// CheckEventCapacity reports whether additionalUnits more tickets still fit
// under the event's max capacity. The sum of sold_quantity across the
// event's types is the live count of non-cancelled tickets, because
// cancellation releases units back through this ledger. Must be called
// inside the same transaction as the reservations it guards.
func (l *Ledger) CheckEventCapacity(ctx context.Context, idb bun.IDB, eventID string, additionalUnits int) (bool, error) {
	var ev models.Event
	err := idb.NewSelect().
		Model(&ev).
		Column("max_capacity").
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, apperr.New(apperr.NotFound, "event not found")
		}
		return false, apperr.Wrap(apperr.Internal, "failed to load event", err)
	}
	if ev.MaxCapacity <= 0 {
		return true, nil
	}

	var sold int
	err = idb.NewSelect().
		Model((*models.TicketType)(nil)).
		ColumnExpr("COALESCE(SUM(sold_quantity), 0)").
		Where("event_id = ?", eventID).
		Scan(ctx, &sold)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "failed to count sold tickets", err)
	}

	return sold+additionalUnits <= ev.MaxCapacity, nil
}
