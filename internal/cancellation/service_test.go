package cancellation_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-eventreg/internal/apperr"
	"ms-eventreg/internal/cancellation"
	"ms-eventreg/internal/inventory"
	"ms-eventreg/internal/logger"
	"ms-eventreg/internal/models"
)

type fixture struct {
	bunDB   *bun.DB
	service *cancellation.Service
}

func newFixture(t *testing.T) *fixture {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Event)(nil),
		(*models.TicketType)(nil),
		(*models.Registration)(nil),
		(*models.IssuedTicket)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table: %v", err)
		}
	}

	log := &logger.Logger{}
	service := cancellation.NewService(
		&cancellation.DB{Bun: bunDB},
		inventory.NewLedger(log),
		log,
	)

	t.Cleanup(func() { bunDB.Close() })
	return &fixture{bunDB: bunDB, service: service}
}

type seed struct {
	event *models.Event
	reg   *models.Registration
	types map[string]*models.TicketType
}

// seedRegistration provisions a registration holding the given number of
// tickets per type name, with sold counts already reflecting them.
func (f *fixture) seedRegistration(t *testing.T, startIn time.Duration, counts map[string]int) *seed {
	ctx := context.Background()
	now := time.Now().UTC()

	event := &models.Event{
		ID:        uuid.New().String(),
		Name:      "GopherCon",
		Status:    models.EventStatusPublished,
		StartDate: now.Add(startIn),
		EndDate:   now.Add(startIn + 8*time.Hour),
		CreatedAt: now,
	}
	_, err := f.bunDB.NewInsert().Model(event).Exec(ctx)
	assert.NoError(t, err)

	reg := &models.Registration{
		ID:            uuid.New().String(),
		EventID:       event.ID,
		UserID:        uuid.New().String(),
		Status:        models.RegistrationStatusConfirmed,
		AttendeeName:  "Ada Lovelace",
		AttendeeEmail: "ada@example.com",
		CreatedAt:     now,
	}
	_, err = f.bunDB.NewInsert().Model(reg).Exec(ctx)
	assert.NoError(t, err)

	types := map[string]*models.TicketType{}
	for name, n := range counts {
		tt := &models.TicketType{
			ID:       uuid.New().String(),
			EventID:  event.ID,
			Name:     name,
			Quantity: 50,
			Sold:     n,
			IsActive: true,
		}
		_, err = f.bunDB.NewInsert().Model(tt).Exec(ctx)
		assert.NoError(t, err)
		types[name] = tt

		for i := 0; i < n; i++ {
			ticket := &models.IssuedTicket{
				ID:             uuid.New().String(),
				RegistrationID: reg.ID,
				TicketTypeID:   tt.ID,
				ReferenceCode:  "REF" + uuid.New().String()[:9],
				QRPayload:      "payload-" + uuid.New().String(),
				AttendeeName:   reg.AttendeeName,
				AttendeeEmail:  reg.AttendeeEmail,
				Status:         models.TicketStatusValid,
				IssuedAt:       now,
			}
			_, err = f.bunDB.NewInsert().Model(ticket).Exec(ctx)
			assert.NoError(t, err)
		}
	}

	return &seed{event: event, reg: reg, types: types}
}

func (f *fixture) sold(t *testing.T, typeID string) int {
	var tt models.TicketType
	err := f.bunDB.NewSelect().Model(&tt).Where("id = ?", typeID).Scan(context.Background())
	assert.NoError(t, err)
	return tt.Sold
}

func TestCancelRegistrationReleasesInventoryByType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.seedRegistration(t, 48*time.Hour, map[string]int{"General": 2, "VIP": 1})

	err := f.service.CancelRegistration(ctx, s.reg.ID, "ada@example.com", "can no longer attend")
	assert.NoError(t, err)

	// Each ticket-type group gets its units back exactly once.
	assert.Equal(t, 0, f.sold(t, s.types["General"].ID))
	assert.Equal(t, 0, f.sold(t, s.types["VIP"].ID))

	var reg models.Registration
	err = f.bunDB.NewSelect().Model(&reg).Where("id = ?", s.reg.ID).Scan(ctx)
	assert.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusCancelled, reg.Status)
	assert.NotNil(t, reg.CancelledAt)
	assert.Equal(t, "ada@example.com", reg.CancelledBy)
	assert.Equal(t, "can no longer attend", reg.CancelReason)

	count, err := f.bunDB.NewSelect().Model((*models.IssuedTicket)(nil)).
		Where("registration_id = ?", s.reg.ID).
		Where("status = ?", models.TicketStatusCancelled).
		Count(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCancelRegistrationTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.seedRegistration(t, 48*time.Hour, map[string]int{"General": 2})

	assert.NoError(t, f.service.CancelRegistration(ctx, s.reg.ID, "ada@example.com", ""))

	err := f.service.CancelRegistration(ctx, s.reg.ID, "ada@example.com", "")
	assert.Error(t, err)
	assert.Equal(t, apperr.StateConflict, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "already cancelled")

	// A repeated cancel never double-releases.
	assert.Equal(t, 0, f.sold(t, s.types["General"].ID))
}

func TestCancelRegistrationAfterEventStarted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.seedRegistration(t, -time.Hour, map[string]int{"General": 1})

	err := f.service.CancelRegistration(ctx, s.reg.ID, "ada@example.com", "")
	assert.Error(t, err)
	assert.Equal(t, apperr.StateConflict, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "already started")

	assert.Equal(t, 1, f.sold(t, s.types["General"].ID))
}

func TestCancelRegistrationNotFound(t *testing.T) {
	f := newFixture(t)

	err := f.service.CancelRegistration(context.Background(), uuid.New().String(), "actor", "")
	assert.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestCancelSkipsAlreadyCancelledTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.seedRegistration(t, 48*time.Hour, map[string]int{"General": 3})

	// One ticket is already individually cancelled and its unit released.
	var one models.IssuedTicket
	err := f.bunDB.NewSelect().Model(&one).
		Where("registration_id = ?", s.reg.ID).
		Limit(1).
		Scan(ctx)
	assert.NoError(t, err)
	_, err = f.bunDB.NewUpdate().Model((*models.IssuedTicket)(nil)).
		Set("status = ?", models.TicketStatusCancelled).
		Where("id = ?", one.ID).
		Exec(ctx)
	assert.NoError(t, err)
	_, err = f.bunDB.NewUpdate().Model((*models.TicketType)(nil)).
		Set("sold_quantity = sold_quantity - 1").
		Where("id = ?", s.types["General"].ID).
		Exec(ctx)
	assert.NoError(t, err)

	assert.NoError(t, f.service.CancelRegistration(ctx, s.reg.ID, "ada@example.com", ""))

	// Only the two still-active tickets are released.
	assert.Equal(t, 0, f.sold(t, s.types["General"].ID))
}
