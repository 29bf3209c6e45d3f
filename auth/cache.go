package auth

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by UserCache.Get when no entry exists.
var ErrCacheMiss = errors.New("auth: cache miss")

// UserCache is an optional look-aside cache for users keyed by ID. Any Get
// error is treated as a miss; the store stays the source of truth.
type UserCache interface {
	Get(ctx context.Context, id int64) (*User, error)
	Set(ctx context.Context, u *User, ttl time.Duration) error
	Delete(ctx context.Context, id int64) error
}

// noCache is used when no cache is configured: every lookup misses.
type noCache struct{}

func (noCache) Get(context.Context, int64) (*User, error) { return nil, ErrCacheMiss }
func (noCache) Set(context.Context, *User, time.Duration) error { return nil }
func (noCache) Delete(context.Context, int64) error { return nil }

// Notifier delivers account emails. Implementations should not block on
// network delivery.
type Notifier interface {
	SendVerification(ctx context.Context, email, username, token string) error
	SendPasswordReset(ctx context.Context, email, username, token string) error
}

type noNotifier struct{}

func (noNotifier) SendVerification(context.Context, string, string, string) error { return nil }
func (noNotifier) SendPasswordReset(context.Context, string, string, string) error { return nil }
