package pincode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arthgyan/onboarding/internal/apperr"
)

const keyPrefix = "pincode:v1:"

// Source looks a pincode up at the provider.
type Source interface {
	LookupPincode(ctx context.Context, pincode string) (json.RawMessage, error)
}

// Cache serves pincode records from Redis, falling back to the source on a
// miss. Redis failures are logged and bypassed.
type Cache struct {
	source Source
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache builds a Cache. A nil client disables caching.
func NewCache(source Source, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{source: source, redis: client, ttl: ttl, logger: logger}
}

// Lookup returns the provider record for a 6 digit pincode.
func (c *Cache) Lookup(ctx context.Context, pincode string) (json.RawMessage, error) {
	pincode = strings.TrimSpace(pincode)
	if !valid(pincode) {
		return nil, fmt.Errorf("%w: pincode must be 6 digits", apperr.ErrInvalidInput)
	}

	key := keyPrefix + pincode
	if c.redis != nil {
		cached, err := c.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil && json.Valid(cached):
			return json.RawMessage(cached), nil
		case err != nil && !errors.Is(err, redis.Nil):
			c.logger.WarnContext(ctx, "pincode cache read failed", slog.Any("error", err))
		}
	}

	record, err := c.source.LookupPincode(ctx, pincode)
	if err != nil {
		return nil, err
	}

	if c.redis != nil && c.ttl > 0 {
		if err := c.redis.Set(ctx, key, []byte(record), c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "pincode cache write failed", slog.Any("error", err))
		}
	}
	return record, nil
}

func valid(pincode string) bool {
	if len(pincode) != 6 {
		return false
	}
	for _, r := range pincode {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
