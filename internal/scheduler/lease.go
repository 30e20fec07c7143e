package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned by Renew when another owner holds the lease.
var ErrLeaseLost = errors.New("scheduler lease lost")

// Lease guarantees at most one scheduler loop per campaign across all
// worker instances. It replaces an in-memory "is running" flag with an
// owned, expiring lock record.
type Lease interface {
	Acquire(ctx context.Context, campaignID int) (bool, error)
	Renew(ctx context.Context, campaignID int) error
	Release(ctx context.Context, campaignID int) error
}

// RedisLease implements Lease with SET NX plus owner-checked renew and
// release, so a worker can never extend or drop a lease it lost.
type RedisLease struct {
	Client *redis.Client
	Owner  string
	TTL    time.Duration
}

var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

func (l *RedisLease) Acquire(ctx context.Context, campaignID int) (bool, error) {
	return l.Client.SetNX(ctx, leaseKey(campaignID), l.Owner, l.TTL).Result()
}

func (l *RedisLease) Renew(ctx context.Context, campaignID int) error {
	n, err := renewScript.Run(ctx, l.Client, []string{leaseKey(campaignID)}, l.Owner, l.TTL.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (l *RedisLease) Release(ctx context.Context, campaignID int) error {
	return releaseScript.Run(ctx, l.Client, []string{leaseKey(campaignID)}, l.Owner).Err()
}

func leaseKey(campaignID int) string {
	return fmt.Sprintf("scheduler:lease:campaign:%d", campaignID)
}

var _ Lease = (*RedisLease)(nil)
