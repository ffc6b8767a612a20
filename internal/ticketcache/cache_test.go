package ticketcache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"ms-eventreg/internal/models"
	"ms-eventreg/internal/ticketcache"
)

func setupCache(t *testing.T) (*ticketcache.Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return ticketcache.New(client, time.Minute), mr
}

func TestCacheSetGetInvalidate(t *testing.T) {
	cache, _ := setupCache(t)
	ctx := context.Background()

	details := &models.TicketDetails{
		ReferenceCode:  "AbC123XyZ789",
		AttendeeName:   "Alice Example",
		AttendeeEmail:  "alice@example.com",
		EventName:      "TechConf",
		TicketTypeName: "General",
		Status:         models.TicketStatusValid,
	}

	// Miss before set.
	got, err := cache.Get(ctx, details.ReferenceCode)
	assert.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, cache.Set(ctx, details.ReferenceCode, details))

	got, err = cache.Get(ctx, details.ReferenceCode)
	assert.NoError(t, err)
	assert.Equal(t, details, got)

	assert.NoError(t, cache.Invalidate(ctx, details.ReferenceCode))

	got, err = cache.Get(ctx, details.ReferenceCode)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheEntryExpires(t *testing.T) {
	cache, mr := setupCache(t)
	ctx := context.Background()

	details := &models.TicketDetails{ReferenceCode: "ExpireMe0001", Status: models.TicketStatusValid}
	assert.NoError(t, cache.Set(ctx, details.ReferenceCode, details))

	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, details.ReferenceCode)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestCorruptEntryTreatedAsMiss(t *testing.T) {
	cache, mr := setupCache(t)
	ctx := context.Background()

	mr.Set("ticket_details:Broken000001", "{not json")

	got, err := cache.Get(ctx, "Broken000001")
	assert.NoError(t, err)
	assert.Nil(t, got)
}
