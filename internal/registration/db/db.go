package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"ms-eventreg/internal/apperr"
	"ms-eventreg/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// RunInTx wraps fn in a single database transaction. All registration
// writes (reservations, registration row, ticket rows) go through one call.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, fn)
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

func (d *DB) GetTicketType(ctx context.Context, idb bun.IDB, id string) (*models.TicketType, error) {
	var tt models.TicketType
	err := idb.NewSelect().
		Model(&tt).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "ticket type not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to load ticket type", err)
	}
	return &tt, nil
}

// HasActiveRegistration reports whether the user already holds a
// non-cancelled registration for the event. A partial unique index on
// (user_id, event_id) backs this check in the store.
func (d *DB) HasActiveRegistration(ctx context.Context, idb bun.IDB, userID, eventID string) (bool, error) {
	exists, err := idb.NewSelect().
		Model((*models.Registration)(nil)).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		Where("status != ?", models.RegistrationStatusCancelled).
		Exists(ctx)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "failed to check existing registration", err)
	}
	return exists, nil
}

func (d *DB) InsertRegistration(ctx context.Context, idb bun.IDB, reg *models.Registration) error {
	if _, err := idb.NewInsert().Model(reg).Exec(ctx); err != nil {
		return apperr.Wrap(apperr.Internal, "failed to create registration", err)
	}
	return nil
}

func (d *DB) InsertTicket(ctx context.Context, idb bun.IDB, ticket *models.IssuedTicket) error {
	if _, err := idb.NewInsert().Model(ticket).Exec(ctx); err != nil {
		return apperr.Wrap(apperr.Internal, "failed to create ticket", err)
	}
	return nil
}

func (d *DB) TicketCodeExists(ctx context.Context, idb bun.IDB, code string) (bool, error) {
	exists, err := idb.NewSelect().
		Model((*models.IssuedTicket)(nil)).
		Where("reference_code = ?", code).
		Exists(ctx)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "failed to check ticket code", err)
	}
	return exists, nil
}
