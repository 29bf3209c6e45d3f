// Package cache provides the Redis-backed user cache and the wrapper that
// keeps a failing cache from slowing every request down.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/contacts-api/auth"
)

// NewClient creates a Redis client from a URL (e.g. redis://:pass@host:6379/0)
// and pings it once.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	const op = "cache.NewClient"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rdb, nil
}

// RedisUserCache stores users as JSON under "user:{id}". The password hash
// is not part of the payload.
type RedisUserCache struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisUserCache(rdb redis.Cmdable) *RedisUserCache {
	return &RedisUserCache{rdb: rdb, prefix: "user:"}
}

func (c *RedisUserCache) key(id int64) string { return c.prefix + strconv.FormatInt(id, 10) }

func (c *RedisUserCache) Get(ctx context.Context, id int64) (*auth.User, error) {
	b, err := c.rdb.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, auth.ErrCacheMiss
		}
		return nil, err
	}

	var u auth.User
	if err := json.Unmarshal(b, &u); err != nil {
		// A payload we cannot read is dropped and treated as a miss.
		_ = c.rdb.Del(ctx, c.key(id)).Err()
		return nil, auth.ErrCacheMiss
	}
	return &u, nil
}

func (c *RedisUserCache) Set(ctx context.Context, u *auth.User, ttl time.Duration) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(u.ID), b, ttl).Err()
}

func (c *RedisUserCache) Delete(ctx context.Context, id int64) error {
	return c.rdb.Del(ctx, c.key(id)).Err()
}

// Resilient wraps a UserCache. After a backend error it bypasses Get and
// Set for the cooldown period, so an outage costs one failed round-trip
// per cooldown instead of one per request. Delete is always attempted.
type Resilient struct {
	next     auth.UserCache
	cooldown time.Duration
	log      *zap.Logger
	now      func() time.Time

	disabledUntil atomic.Int64 // unix nanoseconds
}

func NewResilient(next auth.UserCache, cooldown time.Duration, log *zap.Logger) *Resilient {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resilient{next: next, cooldown: cooldown, log: log, now: time.Now}
}

func (r *Resilient) bypassed() bool {
	return r.now().UnixNano() < r.disabledUntil.Load()
}

func (r *Resilient) trip(op string, err error) {
	until := r.now().Add(r.cooldown).UnixNano()
	prev := r.disabledUntil.Load()
	if r.disabledUntil.CompareAndSwap(prev, until) && prev <= r.now().UnixNano() {
		r.log.Warn("user cache unavailable, bypassing",
			zap.String("op", op),
			zap.Duration("cooldown", r.cooldown),
			zap.Error(err),
		)
	}
}

func (r *Resilient) Get(ctx context.Context, id int64) (*auth.User, error) {
	if r.bypassed() {
		return nil, auth.ErrCacheMiss
	}
	u, err := r.next.Get(ctx, id)
	if err != nil && !errors.Is(err, auth.ErrCacheMiss) {
		r.trip("get", err)
		return nil, auth.ErrCacheMiss
	}
	return u, err
}

func (r *Resilient) Set(ctx context.Context, u *auth.User, ttl time.Duration) error {
	if r.bypassed() {
		return nil
	}
	if err := r.next.Set(ctx, u, ttl); err != nil {
		r.trip("set", err)
		return err
	}
	return nil
}

func (r *Resilient) Delete(ctx context.Context, id int64) error {
	if err := r.next.Delete(ctx, id); err != nil {
		r.trip("delete", err)
		return err
	}
	return nil
}
