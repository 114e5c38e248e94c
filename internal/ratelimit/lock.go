package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockNotConfigured = errors.New("lock client not configured")
	ErrLeaseHeld         = errors.New("lease held by another owner")
	errInvalidLease      = errors.New("lease needs a key and a positive ttl")
)

// compareAndDelete removes KEYS[1] only while it still stores ARGV[1].
var compareAndDelete = redis.NewScript(
	`if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`,
)

// Locker hands out exclusive, expiring leases on redis keys.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// Lease is one owner's hold on a key until it expires or is released.
type Lease struct {
	client *redis.Client
	key    string
	owner  string
}

// Acquire takes key for ttl. It returns ErrLeaseHeld while someone else owns it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockNotConfigured
	}
	if key == "" || ttl <= 0 {
		return nil, errInvalidLease
	}

	owner := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrLeaseHeld
	}
	return &Lease{client: l.client, key: key, owner: owner}, nil
}

// Release gives the key back. A lease that already expired, and was perhaps
// taken by someone else, is left alone.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return compareAndDelete.Run(ctx, l.client, []string{l.key}, l.owner).Err()
}
