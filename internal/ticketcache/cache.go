package ticketcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-eventreg/internal/models"
)

const keyPrefix = "ticket_details:"

// Cache is a TTL-bounded read-through cache for ticket detail lookups by
// reference code. Misses and redis failures both fall through to the store;
// mutations invalidate.
type Cache struct {
	Client *redis.Client
	TTL    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{Client: client, TTL: ttl}
}

// Get returns (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, code string) (*models.TicketDetails, error) {
	raw, err := c.Client.Get(ctx, keyPrefix+code).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var details models.TicketDetails
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		// Stale or corrupt entry; treat as a miss and drop it.
		c.Client.Del(ctx, keyPrefix+code)
		return nil, nil
	}
	return &details, nil
}

func (c *Cache) Set(ctx context.Context, code string, details *models.TicketDetails) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, keyPrefix+code, raw, c.TTL).Err()
}

func (c *Cache) Invalidate(ctx context.Context, code string) error {
	return c.Client.Del(ctx, keyPrefix+code).Err()
}
