package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Lease lets one trigger replica run a tick at a time. It only saves work:
// correctness under overlapping ticks comes from the conditional advance.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
}

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLease is a Lease backed by SET NX with expiry.
type RedisLease struct {
	client setNXer
	key    string
	owner  string
}

// NewRedisLease creates a lease on key.
func NewRedisLease(client *redis.Client, key string) *RedisLease {
	return newRedisLease(client, key)
}

func newRedisLease(client setNXer, key string) *RedisLease {
	return &RedisLease{
		client: client,
		key:    key,
		owner:  uuid.NewString(),
	}
}

// Acquire takes the lease for ttl. It is not renewed; the key expires on its own.
func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}
