package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store tracks applied work units in Redis so redelivered messages are not
// processed twice. Keys are claimed with SetNX before the side effect and
// released again if the side effect fails, so a retry can claim them anew.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// ItemKey identifies one line item of one delivered event.
func (s *Store) ItemKey(eventID, productID string) string {
	return fmt.Sprintf("stock:%s:%s", eventID, productID)
}

// Claim marks the key applied. It returns true if this caller won the claim,
// false if the key was already applied by an earlier delivery.
func (s *Store) Claim(ctx context.Context, key string) (bool, error) {
	return s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
}

// Release frees a claimed key after a failed side effect.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
