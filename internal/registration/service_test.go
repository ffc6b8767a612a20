package registration_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-eventreg/internal/apperr"
	"ms-eventreg/internal/inventory"
	"ms-eventreg/internal/logger"
	"ms-eventreg/internal/models"
	"ms-eventreg/internal/qr"
	"ms-eventreg/internal/registration"
	regdb "ms-eventreg/internal/registration/db"
	"ms-eventreg/internal/userdir"
)

// stubNotifier records deliveries without talking to a broker. The service
// notifies from a goroutine, so access is guarded.
type stubNotifier struct {
	mu            sync.Mutex
	confirmations []string
	ticketEmails  []string
}

func (s *stubNotifier) SendRegistrationConfirmation(registrationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmations = append(s.confirmations, registrationID)
	return nil
}

func (s *stubNotifier) SendTicketEmail(ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticketEmails = append(s.ticketEmails, ticketID)
	return nil
}

type fixture struct {
	bunDB   *bun.DB
	service *registration.Service
	codec   *qr.Codec
}

func newFixture(t *testing.T) *fixture {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.User)(nil),
		(*models.Event)(nil),
		(*models.TicketType)(nil),
		(*models.Registration)(nil),
		(*models.IssuedTicket)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table: %v", err)
		}
	}
	_, err = bunDB.ExecContext(ctx, `CREATE UNIQUE INDEX registrations_active_user_event
		ON registrations (user_id, event_id) WHERE status != 'cancelled'`)
	if err != nil {
		t.Fatalf("Failed to create partial index: %v", err)
	}

	log := &logger.Logger{}
	codec := qr.NewCodec("test-secret")
	service := registration.NewService(
		&regdb.DB{Bun: bunDB},
		userdir.NewDirectory(),
		inventory.NewLedger(log),
		codec,
		&stubNotifier{},
		log,
	)

	t.Cleanup(func() { bunDB.Close() })
	return &fixture{bunDB: bunDB, service: service, codec: codec}
}

func (f *fixture) seedEvent(t *testing.T, mutate func(*models.Event)) *models.Event {
	event := &models.Event{
		ID:          uuid.New().String(),
		Name:        "GopherCon",
		Status:      models.EventStatusPublished,
		StartDate:   time.Now().Add(7 * 24 * time.Hour),
		EndDate:     time.Now().Add(8 * 24 * time.Hour),
		MaxCapacity: 0,
		CreatedAt:   time.Now(),
	}
	if mutate != nil {
		mutate(event)
	}
	_, err := f.bunDB.NewInsert().Model(event).Exec(context.Background())
	assert.NoError(t, err)
	return event
}

func (f *fixture) seedTicketType(t *testing.T, eventID, name string, quantity int) *models.TicketType {
	tt := &models.TicketType{
		ID:       uuid.New().String(),
		EventID:  eventID,
		Name:     name,
		Price:    50.0,
		Quantity: quantity,
		IsActive: true,
	}
	_, err := f.bunDB.NewInsert().Model(tt).Exec(context.Background())
	assert.NoError(t, err)
	return tt
}

func (f *fixture) seedUser(t *testing.T, email string, active bool) *models.User {
	user := &models.User{
		ID:        uuid.New().String(),
		Email:     strings.ToLower(email),
		FullName:  "Seeded User",
		IsActive:  active,
		CreatedAt: time.Now(),
	}
	_, err := f.bunDB.NewInsert().Model(user).Exec(context.Background())
	assert.NoError(t, err)
	return user
}

func (f *fixture) sold(t *testing.T, typeID string) int {
	var tt models.TicketType
	err := f.bunDB.NewSelect().Model(&tt).Where("id = ?", typeID).Scan(context.Background())
	assert.NoError(t, err)
	return tt.Sold
}

func attendee(email string) models.AttendeeInfo {
	return models.AttendeeInfo{Name: "Ada Lovelace", Email: email, Phone: "+1555"}
}

func TestRegisterForEventGuestFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event := f.seedEvent(t, nil)
	general := f.seedTicketType(t, event.ID, "General", 100)
	vip := f.seedTicketType(t, event.ID, "VIP", 10)

	result, err := f.service.RegisterForEvent(ctx, registration.RegisterRequest{
		EventID:  event.ID,
		Attendee: attendee("Ada@Example.COM"),
		Selections: []registration.TicketSelection{
			{TicketTypeID: general.ID, Quantity: 2},
			{TicketTypeID: vip.ID, Quantity: 1},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusConfirmed, result.Registration.Status)
	assert.Len(t, result.Tickets, 3)

	assert.Equal(t, 2, f.sold(t, general.ID))
	assert.Equal(t, 1, f.sold(t, vip.ID))

	// The guest flow synthesizes an inert user with a lowercased email.
	var user models.User
	err = f.bunDB.NewSelect().Model(&user).Where("id = ?", result.Registration.UserID).Scan(ctx)
	assert.NoError(t, err)
	assert.True(t, user.IsGuest)
	assert.True(t, user.IsActive)
	assert.Equal(t, "ada@example.com", user.Email)

	// Every issued ticket carries a distinct reference code and a payload
	// that round-trips through the codec.
	seen := map[string]bool{}
	for _, ticket := range result.Tickets {
		assert.Len(t, ticket.ReferenceCode, 12)
		assert.False(t, seen[ticket.ReferenceCode])
		seen[ticket.ReferenceCode] = true

		assert.True(t, f.codec.Validate(ticket.QRPayload))
		payload, err := f.codec.ExtractPayload(ticket.QRPayload)
		assert.NoError(t, err)
		assert.Equal(t, result.Registration.ID, payload.RegistrationID)
	}
}

func TestRegisterForEventReusesExistingAccountByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event := f.seedEvent(t, nil)
	general := f.seedTicketType(t, event.ID, "General", 10)
	user := f.seedUser(t, "ada@example.com", true)

	result, err := f.service.RegisterForEvent(ctx, registration.RegisterRequest{
		EventID:    event.ID,
		Attendee:   attendee("ada@example.com"),
		Selections: []registration.TicketSelection{{TicketTypeID: general.ID, Quantity: 1}},
	})
	assert.NoError(t, err)
	assert.Equal(t, user.ID, result.Registration.UserID)

	count, err := f.bunDB.NewSelect().Model((*models.User)(nil)).Count(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegisterForEventRejectsDuplicateRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event := f.seedEvent(t, nil)
	general := f.seedTicketType(t, event.ID, "General", 10)
	user := f.seedUser(t, "ada@example.com", true)

	req := registration.RegisterRequest{
		EventID:    event.ID,
		UserID:     user.ID,
		Attendee:   attendee("ada@example.com"),
		Selections: []registration.TicketSelection{{TicketTypeID: general.ID, Quantity: 1}},
	}
	_, err := f.service.RegisterForEvent(ctx, req)
	assert.NoError(t, err)

	_, err = f.service.RegisterForEvent(ctx, req)
	assert.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "already registered")

	// The failed attempt must not leak a reservation.
	assert.Equal(t, 1, f.sold(t, general.ID))
}

func TestRegisterForEventInactiveUser(t *testing.T) {
	f := newFixture(t)

	event := f.seedEvent(t, nil)
	general := f.seedTicketType(t, event.ID, "General", 10)
	user := f.seedUser(t, "gone@example.com", false)

	_, err := f.service.RegisterForEvent(context.Background(), registration.RegisterRequest{
		EventID:    event.ID,
		UserID:     user.ID,
		Attendee:   attendee("gone@example.com"),
		Selections: []registration.TicketSelection{{TicketTypeID: general.ID, Quantity: 1}},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "inactive")
	assert.Equal(t, 0, f.sold(t, general.ID))
}

func TestRegisterForEventUnpublishedEvent(t *testing.T) {
	f := newFixture(t)

	event := f.seedEvent(t, func(e *models.Event) { e.Status = models.EventStatusDraft })
	general := f.seedTicketType(t, event.ID, "General", 10)

	_, err := f.service.RegisterForEvent(context.Background(), registration.RegisterRequest{
		EventID:    event.ID,
		Attendee:   attendee("ada@example.com"),
		Selections: []registration.TicketSelection{{TicketTypeID: general.ID, Quantity: 1}},
	})
	assert.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "not open for registration")
}

func TestRegisterForEventDeadlinePassed(t *testing.T) {
	f := newFixture(t)

	deadline := time.Now().Add(-time.Hour)
	event := f.seedEvent(t, func(e *models.Event) { e.RegistrationDeadline = &deadline })
	general := f.seedTicketType(t, event.ID, "General", 10)

	_, err := f.service.RegisterForEvent(context.Background(), registration.RegisterRequest{
		EventID:    event.ID,
		Attendee:   attendee("ada@example.com"),
		Selections: []registration.TicketSelection{{TicketTypeID: general.ID, Quantity: 1}},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "deadline")
}

func TestRegisterForEventValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event := f.seedEvent(t, nil)
	general := f.seedTicketType(t, event.ID, "General", 10)

	cases := []struct {
		name string
		req  registration.RegisterRequest
		want string
	}{
		{
			name: "missing attendee name",
			req: registration.RegisterRequest{
				EventID:    event.ID,
				Attendee:   models.AttendeeInfo{Email: "ada@example.com"},
				Selections: []registration.TicketSelection{{TicketTypeID: general.ID, Quantity: 1}},
			},
			want: "name is required",
		},
		{
			name: "missing attendee email",
			req: registration.RegisterRequest{
				EventID:    event.ID,
				Attendee:   models.AttendeeInfo{Name: "Ada"},
				Selections: []registration.TicketSelection{{TicketTypeID: general.ID, Quantity: 1}},
			},
			want: "email is required",
		},
		{
			name: "no selections",
			req: registration.RegisterRequest{
				EventID:  event.ID,
				Attendee: attendee("ada@example.com"),
			},
			want: "at least one ticket selection",
		},
		{
			name: "zero quantity",
			req: registration.RegisterRequest{
				EventID:    event.ID,
				Attendee:   attendee("ada@example.com"),
				Selections: []registration.TicketSelection{{TicketTypeID: general.ID, Quantity: 0}},
			},
			want: "must be positive",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.RegisterForEvent(ctx, tc.req)
			assert.Error(t, err)
			assert.Equal(t, apperr.Validation, apperr.KindOf(err))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestRegisterForEventForeignTicketType(t *testing.T) {
	f := newFixture(t)

	event := f.seedEvent(t, nil)
	other := f.seedEvent(t, nil)
	foreign := f.seedTicketType(t, other.ID, "Other Event Pass", 10)

	_, err := f.service.RegisterForEvent(context.Background(), registration.RegisterRequest{
		EventID:    event.ID,
		Attendee:   attendee("ada@example.com"),
		Selections: []registration.TicketSelection{{TicketTypeID: foreign.ID, Quantity: 1}},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "does not belong to this event")
}

func TestRegisterForEventEnforcesEventCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Capacity 2 across plentiful per-type inventory: a request for 3 fails,
	// two single registrations fill the event, the next is refused.
	event := f.seedEvent(t, func(e *models.Event) { e.MaxCapacity = 2 })
	general := f.seedTicketType(t, event.ID, "General", 100)

	_, err := f.service.RegisterForEvent(ctx, registration.RegisterRequest{
		EventID:    event.ID,
		Attendee:   attendee("big@example.com"),
		Selections: []registration.TicketSelection{{TicketTypeID: general.ID, Quantity: 3}},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "capacity")
	assert.Equal(t, 0, f.sold(t, general.ID))

	for _, email := range []string{"first@example.com", "second@example.com"} {
		_, err := f.service.RegisterForEvent(ctx, registration.RegisterRequest{
			EventID:    event.ID,
			Attendee:   attendee(email),
			Selections: []registration.TicketSelection{{TicketTypeID: general.ID, Quantity: 1}},
		})
		assert.NoError(t, err)
	}

	_, err = f.service.RegisterForEvent(ctx, registration.RegisterRequest{
		EventID:    event.ID,
		Attendee:   attendee("third@example.com"),
		Selections: []registration.TicketSelection{{TicketTypeID: general.ID, Quantity: 1}},
	})
	assert.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Equal(t, 2, f.sold(t, general.ID))
}

func TestRegisterForEventRollsBackOnPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event := f.seedEvent(t, nil)
	general := f.seedTicketType(t, event.ID, "General", 100)
	vip := f.seedTicketType(t, event.ID, "VIP", 1)

	// VIP runs out mid-transaction; the General reservation from the same
	// request must roll back with it.
	_, err := f.service.RegisterForEvent(ctx, registration.RegisterRequest{
		EventID:  event.ID,
		Attendee: attendee("ada@example.com"),
		Selections: []registration.TicketSelection{
			{TicketTypeID: general.ID, Quantity: 2},
			{TicketTypeID: vip.ID, Quantity: 2},
		},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient inventory")

	assert.Equal(t, 0, f.sold(t, general.ID))
	assert.Equal(t, 0, f.sold(t, vip.ID))

	count, err := f.bunDB.NewSelect().Model((*models.Registration)(nil)).Count(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}
