package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/shopbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Limiter decides whether a user may pass given the minimum interval.
type Limiter interface {
	Allow(ctx context.Context, userID int64, interval time.Duration) (bool, error)
}

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// Limiter defaults to a per-process memory limiter.
	Limiter Limiter
}

// MemoryLimiter remembers the last accepted update per user in process memory.
type MemoryLimiter struct {
	mu       sync.Mutex
	lastSeen map[int64]time.Time
	now      func() time.Time
}

// NewMemoryLimiter returns an empty in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{lastSeen: make(map[int64]time.Time), now: time.Now}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, userID int64, interval time.Duration) (bool, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastSeen[userID]; ok && now.Sub(last) < interval {
		return false, nil
	}
	l.lastSeen[userID] = now
	return true, nil
}

// RedisLimiter shares the per-user window across bot replicas.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
}

// NewRedisLimiter builds a limiter storing keys as <prefix><user_id>.
func NewRedisLimiter(client redis.Cmdable, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "shopbot:rl:"
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

// Allow implements Limiter. The key lives for one interval; SET NX fails while it exists.
func (l *RedisLimiter) Allow(ctx context.Context, userID int64, interval time.Duration) (bool, error) {
	key := l.prefix + strconv.FormatInt(userID, 10)
	return l.client.SetNX(ctx, key, 1, interval).Result()
}

// RateLimitMiddleware returns a middleware that enforces a minimum interval
// between updates from the same user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewMemoryLimiter()
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}

			// Determine update kind and apply configured exclusions
			upd := c.Update()
			kind := "other"
			switch {
			case upd.Callback != nil:
				kind = "callback"
			case upd.Message != nil:
				kind = "message"
			case upd.Query != nil:
				kind = "inline_query"
			}
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			ok, err := limiter.Allow(ctx, user.ID, opts.Interval)
			cancel()
			if err != nil {
				// Fail open on backend errors.
				logger.TG.Warn("rate limit backend failed",
					slog.String("event", "tg.rate_limit"),
					slog.Int64("user_id", user.ID),
					slog.String("err", err.Error()),
				)
				return next(c)
			}
			if ok {
				return next(c)
			}

			attrs := []any{
				slog.String("event", "tg.rate_limit"),
				slog.Int64("user_id", user.ID),
			}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.Int64("chat_id", chat.ID))
			}
			logger.TG.Warn("rate limit", attrs...)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
