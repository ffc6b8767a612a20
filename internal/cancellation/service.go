package cancellation

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-eventreg/internal/apperr"
	"ms-eventreg/internal/inventory"
	"ms-eventreg/internal/logger"
	"ms-eventreg/internal/models"
)

// Service reverses registrations: the registration and every ticket under
// it move irreversibly to cancelled, and the reserved units go back to the
// inventory ledger, once per ticket-type group.
type Service struct {
	DB     *DB
	Ledger *inventory.Ledger
	Log    *logger.Logger
}

func NewService(database *DB, ledger *inventory.Ledger, log *logger.Logger) *Service {
	return &Service{DB: database, Ledger: ledger, Log: log}
}

func (s *Service) CancelRegistration(ctx context.Context, registrationID, actor, reason string) error {
	reg, err := s.DB.GetRegistration(ctx, registrationID)
	if err != nil {
		return err
	}
	if reg.Status == models.RegistrationStatusCancelled {
		return apperr.New(apperr.StateConflict, "registration is already cancelled")
	}

	event, err := s.DB.GetEvent(ctx, reg.EventID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if !now.Before(event.StartDate) {
		return apperr.New(apperr.StateConflict, "event has already started")
	}

	err = s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		ok, err := s.DB.MarkRegistrationCancelled(ctx, tx, registrationID, actor, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.StateConflict, "registration is already cancelled")
		}

		tickets, err := s.DB.GetActiveTickets(ctx, tx, registrationID)
		if err != nil {
			return err
		}
		if err := s.DB.CancelTickets(ctx, tx, registrationID); err != nil {
			return err
		}

		// Release exactly once per ticket-type group.
		released := map[string]int{}
		for _, t := range tickets {
			released[t.TicketTypeID]++
		}
		for typeID, count := range released {
			if err := s.Ledger.ReleaseUnits(ctx, tx, typeID, count); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Log.LogRegistration("CANCEL", registrationID, fmt.Sprintf("cancelled by %s: %s", actor, reason))
	return nil
}
