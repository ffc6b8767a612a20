package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
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

// GetTicketByPayload looks a ticket up by the triple embedded in a decoded
// QR payload. The email comparison doubles as the store-aware email match.
func (d *DB) GetTicketByPayload(ctx context.Context, registrationID, ticketTypeID, attendeeEmail string) (*models.IssuedTicket, error) {
	var ticket models.IssuedTicket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("registration_id = ?", registrationID).
		Where("ticket_type_id = ?", ticketTypeID).
		Where("lower(attendee_email) = ?", strings.ToLower(attendeeEmail)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "ticket not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to load ticket", err)
	}
	return &ticket, nil
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.IssuedTicket, error) {
	var ticket models.IssuedTicket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "ticket not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to load ticket", err)
	}
	return &ticket, nil
}

func (d *DB) GetTicketByCode(ctx context.Context, code string) (*models.IssuedTicket, error) {
	var ticket models.IssuedTicket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("reference_code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "ticket not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to load ticket", err)
	}
	return &ticket, nil
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

func (d *DB) GetTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	var tt models.TicketType
	err := d.Bun.NewSelect().
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

// MarkCheckedIn flips a ticket to used, keyed on the expected prior status
// so two concurrent check-ins cannot both win. False means the ticket was
// no longer valid when the update ran.
func (d *DB) MarkCheckedIn(ctx context.Context, idb bun.IDB, ticketID, staffUserID string, at time.Time) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.IssuedTicket)(nil)).
		Set("status = ?", models.TicketStatusUsed).
		Set("checked_in_at = ?", at).
		Set("checked_in_by = ?", staffUserID).
		Where("id = ?", ticketID).
		Where("status = ?", models.TicketStatusValid).
		Exec(ctx)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "failed to check in ticket", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "failed to check in ticket", err)
	}
	return rows == 1, nil
}

// ClearCheckIn reverses a check-in, keyed on the used status.
func (d *DB) ClearCheckIn(ctx context.Context, idb bun.IDB, ticketID string) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.IssuedTicket)(nil)).
		Set("status = ?", models.TicketStatusValid).
		Set("checked_in_at = NULL").
		Set("checked_in_by = ''").
		Where("id = ?", ticketID).
		Where("status = ?", models.TicketStatusUsed).
		Exec(ctx)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "failed to undo check-in", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "failed to undo check-in", err)
	}
	return rows == 1, nil
}

func (d *DB) CountUsedTickets(ctx context.Context, idb bun.IDB, registrationID string) (int, error) {
	count, err := idb.NewSelect().
		Model((*models.IssuedTicket)(nil)).
		Where("registration_id = ?", registrationID).
		Where("status = ?", models.TicketStatusUsed).
		Count(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "failed to count used tickets", err)
	}
	return count, nil
}

func (d *DB) SetRegistrationStatus(ctx context.Context, idb bun.IDB, registrationID, status string) error {
	_, err := idb.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("status = ?", status).
		Where("id = ?", registrationID).
		Exec(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to update registration status", err)
	}
	return nil
}

// ExpireOverdueTickets sweeps valid tickets whose payload TTL has lapsed
// into the expired state. Returns the number of tickets flipped.
func (d *DB) ExpireOverdueTickets(ctx context.Context, issuedBefore time.Time) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.IssuedTicket)(nil)).
		Set("status = ?", models.TicketStatusExpired).
		Where("status = ?", models.TicketStatusValid).
		Where("issued_at < ?", issuedBefore).
		Exec(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "failed to expire tickets", err)
	}
	return res.RowsAffected()
}
