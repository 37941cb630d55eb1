package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	"github.com/m3rciful/shopbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MiddlewareOptions feeds DefaultMiddlewares.
type MiddlewareOptions struct {
	Config *coreconfig.Config
	// AllowedUsers enables the access filter when non-empty.
	AllowedUsers []int64
	// Limiter overrides the in-memory rate limit backend.
	Limiter   middleware.Limiter
	OnLimited tele.HandlerFunc
	Metrics   *middleware.Collectors
}

// DefaultMiddlewares builds the shared middleware chain for bots.
func DefaultMiddlewares(opts MiddlewareOptions) []Middleware {
	m := opts.Metrics
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
	}

	if len(opts.AllowedUsers) > 0 {
		mws = append(mws, Middleware{
			Name: "access",
			Use: middleware.AllowListMiddleware(middleware.AllowListOptions{
				Allowed: opts.AllowedUsers,
				OnDrop:  func(tele.Context) { m.Drop("access") },
			}),
		})
	}

	if cfg := opts.Config; cfg != nil {
		interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
		if interval > 0 {
			ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
			for _, t := range cfg.RateLimit.ExcludeUpdates {
				ex[strings.ToLower(t)] = struct{}{}
			}
			onLimited := opts.OnLimited
			rl := middleware.RateLimitOptions{
				Interval: interval,
				Exclude:  ex,
				Limiter:  opts.Limiter,
				OnLimited: func(c tele.Context) error {
					m.Drop("rate_limit")
					if onLimited != nil {
						return onLimited(c)
					}
					return nil
				},
			}
			mws = append(mws, Middleware{
				Name: "rate_limit",
				Use:  middleware.RateLimitMiddleware(rl),
			})
		}
	}

	mws = append(mws,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware(m)},
	)

	return mws
}
