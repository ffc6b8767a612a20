package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-eventreg/internal/apperr"
	"ms-eventreg/internal/inventory"
	"ms-eventreg/internal/logger"
	"ms-eventreg/internal/models"
	"ms-eventreg/internal/qr"
	"ms-eventreg/internal/registration/db"
	"ms-eventreg/internal/utils"
)

// UserDirectory resolves attendees to directory entries. Guests get a
// synthesized inert entry.
type UserDirectory interface {
	FindUser(ctx context.Context, idb bun.IDB, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, idb bun.IDB, email string) (*models.User, error)
	CreateGuestUser(ctx context.Context, idb bun.IDB, info models.AttendeeInfo) (string, error)
}

// Notifier is fire-and-forget; delivery failures never fail a registration.
type Notifier interface {
	SendRegistrationConfirmation(registrationID string) error
	SendTicketEmail(ticketID string) error
}

type TicketSelection struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

type RegisterRequest struct {
	EventID    string              `json:"event_id"`
	UserID     string              `json:"user_id,omitempty"`
	Attendee   models.AttendeeInfo `json:"attendee"`
	Selections []TicketSelection   `json:"ticket_selections"`
}

type Result struct {
	Registration models.Registration   `json:"registration"`
	Tickets      []models.IssuedTicket `json:"tickets"`
}

type Service struct {
	DB       *db.DB
	Users    UserDirectory
	Ledger   *inventory.Ledger
	Codec    *qr.Codec
	Notifier Notifier
	Log      *logger.Logger
}

func NewService(database *db.DB, users UserDirectory, ledger *inventory.Ledger, codec *qr.Codec, notifier Notifier, log *logger.Logger) *Service {
	return &Service{DB: database, Users: users, Ledger: ledger, Codec: codec, Notifier: notifier, Log: log}
}

// RegisterForEvent runs the full registration flow: precondition checks,
// atomic inventory reservation, attendee resolution, and creation of the
// registration plus one ticket row per requested unit. Everything that
// writes happens inside one transaction; a failure anywhere rolls back the
// reservations with it.
func (s *Service) RegisterForEvent(ctx context.Context, req RegisterRequest) (*Result, error) {
	now := time.Now().UTC()

	event, err := s.DB.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventStatusPublished {
		return nil, apperr.New(apperr.Validation, "event is not open for registration")
	}
	if event.RegistrationDeadline != nil && now.After(*event.RegistrationDeadline) {
		return nil, apperr.New(apperr.Validation, "registration deadline has passed")
	}

	if err := validateSelections(req); err != nil {
		return nil, err
	}
	totalUnits := 0
	for _, sel := range req.Selections {
		totalUnits += sel.Quantity
	}

	// Advisory pass over the selected types so callers get the precise
	// failure before any reservation is attempted. ReserveUnits re-enforces
	// all of this atomically inside the transaction.
	for _, sel := range req.Selections {
		tt, err := s.DB.GetTicketType(ctx, s.DB.Bun, sel.TicketTypeID)
		if err != nil {
			return nil, err
		}
		if tt.EventID != event.ID {
			return nil, apperr.Newf(apperr.Validation, "ticket type %q does not belong to this event", tt.Name)
		}
		if !tt.IsActive {
			return nil, apperr.Newf(apperr.Validation, "ticket type %q is not on sale", tt.Name)
		}
		if !tt.SaleOpen(now) {
			return nil, apperr.Newf(apperr.Validation, "sale window for %q is closed", tt.Name)
		}
	}

	var result *Result
	err = s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		ok, err := s.Ledger.CheckEventCapacity(ctx, tx, event.ID, totalUnits)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Newf(apperr.Validation, "event capacity exceeded: %d more tickets requested", totalUnits)
		}

		for _, sel := range req.Selections {
			if err := s.Ledger.ReserveUnits(ctx, tx, sel.TicketTypeID, sel.Quantity); err != nil {
				return err
			}
		}

		userID, err := s.resolveAttendee(ctx, tx, req)
		if err != nil {
			return err
		}

		reg := models.Registration{
			ID:            uuid.New().String(),
			EventID:       event.ID,
			UserID:        userID,
			Status:        models.RegistrationStatusConfirmed,
			AttendeeName:  req.Attendee.Name,
			AttendeeEmail: req.Attendee.Email,
			AttendeePhone: req.Attendee.Phone,
			AttendeeOrg:   req.Attendee.Organization,
			CreatedAt:     now,
		}
		if err := s.DB.InsertRegistration(ctx, tx, &reg); err != nil {
			return err
		}

		var tickets []models.IssuedTicket
		for _, sel := range req.Selections {
			for i := 0; i < sel.Quantity; i++ {
				ticket, err := s.issueTicket(ctx, tx, &reg, sel.TicketTypeID, now)
				if err != nil {
					return err
				}
				tickets = append(tickets, *ticket)
			}
		}

		result = &Result{Registration: reg, Tickets: tickets}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.LogRegistration("CREATE", result.Registration.ID,
		fmt.Sprintf("%d tickets issued for event %s", len(result.Tickets), event.ID))

	go s.notify(result)

	return result, nil
}

func validateSelections(req RegisterRequest) error {
	if req.Attendee.Name == "" {
		return apperr.New(apperr.Validation, "attendee name is required")
	}
	if req.Attendee.Email == "" {
		return apperr.New(apperr.Validation, "attendee email is required")
	}
	if len(req.Selections) == 0 {
		return apperr.New(apperr.Validation, "at least one ticket selection is required")
	}
	for _, sel := range req.Selections {
		if sel.Quantity <= 0 {
			return apperr.New(apperr.Validation, "ticket quantity must be positive")
		}
	}
	return nil
}

// resolveAttendee implements the user-resolution rules: an authenticated
// user id must exist, be active and not already hold a live registration;
// the guest flow reuses an existing account by email or synthesizes one.
func (s *Service) resolveAttendee(ctx context.Context, idb bun.IDB, req RegisterRequest) (string, error) {
	if req.UserID != "" {
		user, err := s.Users.FindUser(ctx, idb, req.UserID)
		if err != nil {
			return "", err
		}
		if !user.IsActive {
			return "", apperr.New(apperr.Validation, "user account is inactive")
		}
		return user.ID, s.ensureNotRegistered(ctx, idb, user.ID, req.EventID)
	}

	user, err := s.Users.FindUserByEmail(ctx, idb, req.Attendee.Email)
	if err == nil {
		return user.ID, s.ensureNotRegistered(ctx, idb, user.ID, req.EventID)
	}
	if !apperr.IsKind(err, apperr.NotFound) {
		return "", err
	}

	return s.Users.CreateGuestUser(ctx, idb, req.Attendee)
}

func (s *Service) ensureNotRegistered(ctx context.Context, idb bun.IDB, userID, eventID string) error {
	exists, err := s.DB.HasActiveRegistration(ctx, idb, userID, eventID)
	if err != nil {
		return err
	}
	if exists {
		return apperr.New(apperr.Validation, "already registered for this event")
	}
	return nil
}

func (s *Service) issueTicket(ctx context.Context, idb bun.IDB, reg *models.Registration, ticketTypeID string, now time.Time) (*models.IssuedTicket, error) {
	code, err := s.uniqueTicketCode(ctx, idb)
	if err != nil {
		return nil, err
	}

	payload, err := s.Codec.MintPayload(reg.ID, ticketTypeID, reg.AttendeeEmail)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to mint ticket payload", err)
	}

	ticket := models.IssuedTicket{
		ID:             uuid.New().String(),
		RegistrationID: reg.ID,
		TicketTypeID:   ticketTypeID,
		ReferenceCode:  code,
		QRPayload:      payload,
		AttendeeName:   reg.AttendeeName,
		AttendeeEmail:  reg.AttendeeEmail,
		Status:         models.TicketStatusValid,
		IssuedAt:       now,
	}
	if err := s.DB.InsertTicket(ctx, idb, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// uniqueTicketCode regenerates on collision. With a 62^12 code space the
// first candidate wins essentially always.
func (s *Service) uniqueTicketCode(ctx context.Context, idb bun.IDB) (string, error) {
	for {
		code := utils.GenerateTicketCode()
		exists, err := s.DB.TicketCodeExists(ctx, idb, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
}

// notify runs after commit; delivery problems are logged and dropped.
func (s *Service) notify(result *Result) {
	if err := s.Notifier.SendRegistrationConfirmation(result.Registration.ID); err != nil {
		s.Log.Error("NOTIFY", "confirmation for "+result.Registration.ID+" failed: "+err.Error())
	}
	for _, ticket := range result.Tickets {
		if err := s.Notifier.SendTicketEmail(ticket.ID); err != nil {
			s.Log.Error("NOTIFY", "ticket email for "+ticket.ID+" failed: "+err.Error())
		}
	}
}
