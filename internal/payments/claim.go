package payments

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/boxoffice-backend/pkg/redis"
)

const initClaimScope = "payment-init"

// Claimer grants at most one holder the right to initialize a reservation's
// payment until the claim is released or expires.
type Claimer interface {
	Acquire(ctx context.Context, reservationID string, ttl time.Duration) (release func(), acquired bool, err error)
}

// RedisClaimer shares claims across API instances.
type RedisClaimer struct {
	store redis.ClaimStore
}

func NewRedisClaimer(store redis.ClaimStore) (*RedisClaimer, error) {
	if store == nil {
		return nil, errors.New("claim store is required")
	}
	return &RedisClaimer{store: store}, nil
}

func (c *RedisClaimer) Acquire(ctx context.Context, reservationID string, ttl time.Duration) (func(), bool, error) {
	key := c.store.ClaimKey(initClaimScope, reservationID)
	owner := uuid.NewString()
	ok, err := c.store.SetNX(ctx, key, owner, ttl)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		_, _ = c.store.ReleaseIfOwner(context.WithoutCancel(ctx), key, owner)
	}
	return release, true, nil
}

// LocalClaimer keeps claims in process memory. Only safe with a single API instance.
type LocalClaimer struct {
	mu     sync.Mutex
	claims map[string]localClaim
	now    func() time.Time
}

type localClaim struct {
	owner     string
	expiresAt time.Time
}

func NewLocalClaimer() *LocalClaimer {
	return &LocalClaimer{claims: map[string]localClaim{}, now: time.Now}
}

func (c *LocalClaimer) Acquire(_ context.Context, reservationID string, ttl time.Duration) (func(), bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if held, ok := c.claims[reservationID]; ok && now.Before(held.expiresAt) {
		return nil, false, nil
	}
	owner := uuid.NewString()
	c.claims[reservationID] = localClaim{owner: owner, expiresAt: now.Add(ttl)}

	release := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if held, ok := c.claims[reservationID]; ok && held.owner == owner {
			delete(c.claims, reservationID)
		}
	}
	return release, true, nil
}
