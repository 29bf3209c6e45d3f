// Package ratelimit implements a fixed-window request limiter keyed by route
// and client IP.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/contacts-api/apperror"
)

// Store counts hits in a window. It returns the count including this hit
// and the time left until the window resets.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// RedisStore keeps one counter per key with INCR and EXPIRE.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "ratelimit:"}
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	key = s.prefix + key

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	left := ttl.Val()
	// A fresh counter (or one that lost its expiry) starts a new window.
	if left < 0 {
		if err := s.rdb.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		left = window
	}
	return incr.Val(), left, nil
}

// Limiter allows at most limit requests per window per key. A nil Limiter
// lets every request through.
type Limiter struct {
	store  Store
	limit  int64
	window time.Duration
	log    *zap.Logger
}

func New(store Store, limit int, window time.Duration, log *zap.Logger) *Limiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{store: store, limit: int64(limit), window: window, log: log}
}

// Middleware limits the wrapped route. name distinguishes routes sharing
// the same store.
func (l *Limiter) Middleware(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil || l.store == nil || l.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := name + ":" + clientIP(r)
			count, ttl, err := l.store.Hit(r.Context(), key, l.window)
			if err != nil {
				l.log.Warn("rate limit store unavailable, allowing request", zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if count > l.limit {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(ttl)))
				apperror.WriteError(w, r, l.log, apperror.NewTooManyRequestsError("too many requests", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(ttl time.Duration) int {
	secs := int((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// clientIP uses RemoteAddr, which the RealIP middleware has already
// rewritten from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
