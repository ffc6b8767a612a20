package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-eventreg/internal/apperr"
	"ms-eventreg/internal/checkin/db"
	"ms-eventreg/internal/logger"
	"ms-eventreg/internal/models"
	"ms-eventreg/internal/qr"
	"ms-eventreg/internal/ticketcache"
	"ms-eventreg/internal/utils"
)

// Publisher streams check-in events for downstream consumers.
type Publisher interface {
	PublishTicketCheckedIn(ticket models.IssuedTicket) error
}

type ValidationResult struct {
	IsValid bool                  `json:"is_valid"`
	Message string                `json:"message"`
	Errors  []string              `json:"errors,omitempty"`
	Ticket  *models.TicketDetails `json:"ticket,omitempty"`
}

// Service is the check-in state machine: Valid→Used on check-in, Used→Valid
// on undo. Cancellation and expiry are one-way and owned elsewhere.
type Service struct {
	DB        *db.DB
	Codec     *qr.Codec
	Cache     *ticketcache.Cache
	Publisher Publisher
	Log       *logger.Logger
}

func NewService(database *db.DB, codec *qr.Codec, cache *ticketcache.Cache, publisher Publisher, log *logger.Logger) *Service {
	return &Service{DB: database, Codec: codec, Cache: cache, Publisher: publisher, Log: log}
}

// CheckIn validates the QR payload, verifies eligibility and transitions
// the ticket to used. The status flip is a conditional update so a second
// concurrent check-in loses.
func (s *Service) CheckIn(ctx context.Context, opaqueQR, staffUserID string) (*models.TicketDetails, error) {
	ticket, reg, event, err := s.verify(ctx, opaqueQR)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		ok, err := s.DB.MarkCheckedIn(ctx, tx, ticket.ID, staffUserID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.StateConflict, "ticket already checked in")
		}

		used, err := s.DB.CountUsedTickets(ctx, tx, reg.ID)
		if err != nil {
			return err
		}
		if used == 1 {
			return s.DB.SetRegistrationStatus(ctx, tx, reg.ID, models.RegistrationStatusCheckedIn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ticket.Status = models.TicketStatusUsed
	ticket.CheckedInAt = &now
	ticket.CheckedInBy = staffUserID

	s.Log.LogCheckin("CHECKIN", ticket.ReferenceCode, "checked in by "+staffUserID)
	s.invalidate(ctx, ticket.ReferenceCode)
	if s.Publisher != nil {
		go func(t models.IssuedTicket) {
			if err := s.Publisher.PublishTicketCheckedIn(t); err != nil {
				s.Log.Error("CHECKIN", "publish check-in event failed: "+err.Error())
			}
		}(*ticket)
	}

	return s.detailsFor(ctx, ticket, reg, event)
}

// ValidateOnly runs the same checks as CheckIn without mutating anything;
// used for dry-run verification at an entry gate.
func (s *Service) ValidateOnly(ctx context.Context, opaqueQR string) *ValidationResult {
	ticket, reg, event, err := s.verify(ctx, opaqueQR)
	if err != nil {
		ae := apperr.FromError(err)
		return &ValidationResult{IsValid: false, Message: ae.Message, Errors: ae.Errs}
	}

	details, err := s.detailsFor(ctx, ticket, reg, event)
	if err != nil {
		ae := apperr.FromError(err)
		return &ValidationResult{IsValid: false, Message: ae.Message}
	}
	return &ValidationResult{IsValid: true, Message: "ticket is valid", Ticket: details}
}

// verify performs the payload and store-aware halves of validation and
// returns the loaded records for the transition step.
func (s *Service) verify(ctx context.Context, opaqueQR string) (*models.IssuedTicket, *models.Registration, *models.Event, error) {
	// Decode failures, tampering and payload expiry all surface as the same
	// generic error; decryption internals stay opaque to the caller.
	if !s.Codec.Validate(opaqueQR) {
		s.Log.LogSecurity("QR_REJECT", "payload failed signature or expiry validation")
		return nil, nil, nil, apperr.New(apperr.Security, "invalid ticket")
	}

	payload, err := s.Codec.ExtractPayload(opaqueQR)
	if err != nil {
		return nil, nil, nil, apperr.New(apperr.Security, "invalid ticket")
	}

	ticket, err := s.DB.GetTicketByPayload(ctx, payload.RegistrationID, payload.TicketTypeID, payload.AttendeeEmail)
	if err != nil {
		return nil, nil, nil, err
	}

	switch ticket.Status {
	case models.TicketStatusUsed:
		msg := "ticket already checked in"
		if ticket.CheckedInAt != nil {
			msg = fmt.Sprintf("ticket already checked in at %s", ticket.CheckedInAt.Format(time.RFC3339))
		}
		return nil, nil, nil, apperr.New(apperr.StateConflict, msg)
	case models.TicketStatusCancelled:
		return nil, nil, nil, apperr.New(apperr.StateConflict, "ticket has been cancelled")
	case models.TicketStatusExpired:
		return nil, nil, nil, apperr.New(apperr.StateConflict, "ticket has expired")
	}

	reg, err := s.DB.GetRegistration(ctx, ticket.RegistrationID)
	if err != nil {
		return nil, nil, nil, err
	}
	if reg.Status == models.RegistrationStatusCancelled {
		return nil, nil, nil, apperr.New(apperr.StateConflict, "registration has been cancelled")
	}

	event, err := s.DB.GetEvent(ctx, reg.EventID)
	if err != nil {
		return nil, nil, nil, err
	}

	now := time.Now().UTC()
	if now.Before(event.StartDate.Add(-utils.CheckinWindow)) {
		return nil, nil, nil, apperr.New(apperr.Validation, "event hasn't started yet")
	}
	if !utils.WithinCheckinWindow(now, event.StartDate) {
		return nil, nil, nil, apperr.New(apperr.Validation, "check-in window has closed")
	}

	return ticket, reg, event, nil
}

// UndoCheckIn reverses a check-in. A ticket that was never checked in is an
// error, not a silent success.
func (s *Service) UndoCheckIn(ctx context.Context, ticketID, staffUserID string) error {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.CheckedInAt == nil {
		return apperr.New(apperr.StateConflict, "ticket is not checked in")
	}

	err = s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		ok, err := s.DB.ClearCheckIn(ctx, tx, ticket.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.StateConflict, "ticket is not checked in")
		}

		remaining, err := s.DB.CountUsedTickets(ctx, tx, ticket.RegistrationID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return s.DB.SetRegistrationStatus(ctx, tx, ticket.RegistrationID, models.RegistrationStatusConfirmed)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Log.LogCheckin("UNDO", ticket.ReferenceCode, "check-in undone by "+staffUserID)
	s.invalidate(ctx, ticket.ReferenceCode)
	return nil
}

// GetTicketByCode serves the gate lookup path through the cache.
func (s *Service) GetTicketByCode(ctx context.Context, code string) (*models.TicketDetails, error) {
	if s.Cache != nil {
		if hit, err := s.Cache.Get(ctx, code); err == nil && hit != nil {
			return hit, nil
		}
	}

	ticket, err := s.DB.GetTicketByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	details, err := s.detailsFor(ctx, ticket, nil, nil)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, code, details); err != nil {
			s.Log.Warn("CHECKIN", "ticket cache set failed: "+err.Error())
		}
	}
	return details, nil
}

// TicketArtifacts returns the details plus the opaque QR payload for
// rendering the printable document and QR image.
func (s *Service) TicketArtifacts(ctx context.Context, code string) (*models.TicketDetails, string, error) {
	ticket, err := s.DB.GetTicketByCode(ctx, code)
	if err != nil {
		return nil, "", err
	}
	details, err := s.detailsFor(ctx, ticket, nil, nil)
	if err != nil {
		return nil, "", err
	}
	return details, ticket.QRPayload, nil
}

// ExpireOverdueTickets sweeps valid tickets past their payload TTL into the
// expired state; run periodically by the check-in service.
func (s *Service) ExpireOverdueTickets(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-qr.PayloadTTL)
	n, err := s.DB.ExpireOverdueTickets(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.Log.LogCheckin("EXPIRE", "sweep", fmt.Sprintf("%d tickets expired", n))
	}
	return n, nil
}

func (s *Service) detailsFor(ctx context.Context, ticket *models.IssuedTicket, reg *models.Registration, event *models.Event) (*models.TicketDetails, error) {
	var err error
	if reg == nil {
		reg, err = s.DB.GetRegistration(ctx, ticket.RegistrationID)
		if err != nil {
			return nil, err
		}
	}
	if event == nil {
		event, err = s.DB.GetEvent(ctx, reg.EventID)
		if err != nil {
			return nil, err
		}
	}
	tt, err := s.DB.GetTicketType(ctx, ticket.TicketTypeID)
	if err != nil {
		return nil, err
	}

	return &models.TicketDetails{
		ReferenceCode:  ticket.ReferenceCode,
		AttendeeName:   ticket.AttendeeName,
		AttendeeEmail:  ticket.AttendeeEmail,
		EventName:      event.Name,
		EventStart:     event.StartDate,
		TicketTypeName: tt.Name,
		Status:         ticket.Status,
		CheckedInAt:    ticket.CheckedInAt,
		CheckedInBy:    ticket.CheckedInBy,
	}, nil
}

func (s *Service) invalidate(ctx context.Context, code string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, code); err != nil {
		s.Log.Warn("CHECKIN", "ticket cache invalidate failed: "+err.Error())
	}
}
