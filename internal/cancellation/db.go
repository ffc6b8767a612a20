package cancellation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-eventreg/internal/apperr"
	"ms-eventreg/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, fn)
}

func (d *DB) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "registration not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to load registration", err)
	}
	return &reg, nil
}

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "event not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to load event", err)
	}
	return &event, nil
}

// MarkRegistrationCancelled is conditional on the registration not already
// being cancelled, so a concurrent double-cancel releases inventory only
// once.
func (d *DB) MarkRegistrationCancelled(ctx context.Context, idb bun.IDB, id, actor, reason string, at time.Time) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("status = ?", models.RegistrationStatusCancelled).
		Set("cancelled_at = ?", at).
		Set("cancelled_by = ?", actor).
		Set("cancel_reason = ?", reason).
		Where("id = ?", id).
		Where("status != ?", models.RegistrationStatusCancelled).
		Exec(ctx)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "failed to cancel registration", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "failed to cancel registration", err)
	}
	return rows == 1, nil
}

// GetActiveTickets returns the registration's tickets that still count
// against inventory.
func (d *DB) GetActiveTickets(ctx context.Context, idb bun.IDB, registrationID string) ([]models.IssuedTicket, error) {
	var tickets []models.IssuedTicket
	err := idb.NewSelect().
		Model(&tickets).
		Where("registration_id = ?", registrationID).
		Where("status != ?", models.TicketStatusCancelled).
		Scan(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load tickets", err)
	}
	return tickets, nil
}

func (d *DB) CancelTickets(ctx context.Context, idb bun.IDB, registrationID string) error {
	_, err := idb.NewUpdate().
		Model((*models.IssuedTicket)(nil)).
		Set("status = ?", models.TicketStatusCancelled).
		Where("registration_id = ?", registrationID).
		Where("status != ?", models.TicketStatusCancelled).
		Exec(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to cancel tickets", err)
	}
	return nil
}
