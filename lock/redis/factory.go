// Package redis implements a distributed lock factory on Redis. Acquire
// relies on SET NX with a TTL; renew and release are compare-owner Lua
// scripts so only the current holder can mutate a record.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	locks := redislock.New(client)
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/id"
	"github.com/stevearc/eat-your-vegetables/lock"
)

// keyPrefix namespaces lock keys away from broker keys.
const keyPrefix = "nom:lock:"

// renewScript extends the TTL only while the stored owner matches.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the record only while the stored owner matches.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Factory implements lock.Factory backed by Redis. Safe for concurrent
// use; the caller owns the client lifecycle.
type Factory struct {
	client redis.Cmdable
}

var _ lock.Factory = (*Factory)(nil)

// New creates a Redis-backed lock factory.
func New(client redis.Cmdable) *Factory {
	return &Factory{client: client}
}

// Acquire creates the lock record with SET NX. Redis expires the key at
// TTL, so a crashed holder's record disappears on its own.
func (f *Factory) Acquire(ctx context.Context, name string, ttl time.Duration) (*lock.Lock, error) {
	owner := id.NewOwnerToken()

	ok, err := f.client.SetNX(ctx, keyPrefix+name, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock/redis: acquire %q: %w", name, err)
	}
	if !ok {
		return nil, vegetables.ErrBusy
	}

	return &lock.Lock{Name: name, Owner: owner, ExpiresAt: time.Now().Add(ttl)}, nil
}

// Renew extends the key's TTL if the caller still owns it.
func (f *Factory) Renew(ctx context.Context, l *lock.Lock, ttl time.Duration) error {
	res, err := renewScript.Run(ctx, f.client, []string{keyPrefix + l.Name}, l.Owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("lock/redis: renew %q: %w", l.Name, err)
	}
	if res == 0 {
		return vegetables.ErrLockLost
	}
	l.ExpiresAt = time.Now().Add(ttl)
	return nil
}

// Release deletes the key if the caller still owns it. Expired or
// foreign records are left alone and no error is returned.
func (f *Factory) Release(ctx context.Context, l *lock.Lock) error {
	if _, err := releaseScript.Run(ctx, f.client, []string{keyPrefix + l.Name}, l.Owner).Int(); err != nil {
		return fmt.Errorf("lock/redis: release %q: %w", l.Name, err)
	}
	return nil
}
