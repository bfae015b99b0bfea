package payments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/boxoffice-backend/pkg/enums"
	"github.com/angelmondragon/boxoffice-backend/pkg/logger"
	"github.com/angelmondragon/boxoffice-backend/pkg/redis"
)

// StatusCache holds recent provider answers so polling browsers do not hit
// the provider on every request.
type StatusCache interface {
	Get(ctx context.Context, reservationID string, method enums.PaymentMethod) (PaymentResult, bool)
	Put(ctx context.Context, reservationID string, method enums.PaymentMethod, result PaymentResult)
}

type noopStatusCache struct{}

func (noopStatusCache) Get(context.Context, string, enums.PaymentMethod) (PaymentResult, bool) {
	return PaymentResult{}, false
}

func (noopStatusCache) Put(context.Context, string, enums.PaymentMethod, PaymentResult) {}

// RedisStatusCache stores results as JSON under bo:payment-status:<reservation>:<method>.
// Cache failures are logged and treated as misses.
type RedisStatusCache struct {
	store redis.CacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

func NewRedisStatusCache(store redis.CacheStore, ttl time.Duration, logg *logger.Logger) *RedisStatusCache {
	return &RedisStatusCache{store: store, ttl: ttl, logg: logg}
}

func (c *RedisStatusCache) Get(ctx context.Context, reservationID string, method enums.PaymentMethod) (PaymentResult, bool) {
	if c == nil || c.store == nil || c.ttl <= 0 {
		return PaymentResult{}, false
	}
	raw, err := c.store.Get(ctx, c.store.PaymentStatusKey(reservationID, string(method)))
	if err != nil {
		if !redis.IsMiss(err) && c.logg != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "payment status cache read failed")
		}
		return PaymentResult{}, false
	}
	var result PaymentResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil || !result.Type.IsValid() {
		return PaymentResult{}, false
	}
	return result, true
}

func (c *RedisStatusCache) Put(ctx context.Context, reservationID string, method enums.PaymentMethod, result PaymentResult) {
	if c == nil || c.store == nil || c.ttl <= 0 {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, c.store.PaymentStatusKey(reservationID, string(method)), string(payload), c.ttl); err != nil && c.logg != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "payment status cache write failed")
	}
}
