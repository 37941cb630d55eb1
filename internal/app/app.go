// Package app wires configuration, storage, the shopping service and the
// Telegram runtime into one application object.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/shopbot/core/bootstrap"
	coreconfig "github.com/m3rciful/shopbot/core/config"
	"github.com/m3rciful/shopbot/core/logger"
	tg "github.com/m3rciful/shopbot/core/telegram"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/middleware"
	"github.com/m3rciful/shopbot/core/telegram/router"
	"github.com/m3rciful/shopbot/core/telegram/sender"
	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/core/telegram/ui"
	"github.com/m3rciful/shopbot/internal/bot"
	"github.com/m3rciful/shopbot/internal/config"
	"github.com/m3rciful/shopbot/internal/metrics"
	"github.com/m3rciful/shopbot/internal/ops"
	"github.com/m3rciful/shopbot/internal/service"
	"github.com/m3rciful/shopbot/internal/storage"
	"github.com/m3rciful/shopbot/migrations"

	tele "gopkg.in/telebot.v4"
)

// App is the application context built once at startup.
type App struct {
	cfg      *config.Config
	db       *sqlx.DB
	store    *storage.Store
	metrics  *metrics.Metrics
	shop     *service.Shopping
	fsm      state.Manager
	bot      *bot.Bot
	registry *tg.Registry
	redis    *redis.Client
	ops      *ops.Server

	tg atomic.Pointer[tele.Bot]
}

var _ ui.FallbackProvider = (*bot.Bot)(nil)

// Bootstrap initializes logging and the database, then builds the App.
func Bootstrap(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	res, err := bootstrap.Run(bootstrap.Options{
		Config:     cfg.CoreConfig(),
		Database:   cfg.Database,
		Migrations: migrations.FS,
	})
	if err != nil {
		return nil, err
	}
	a, err := New(cfg, res.DB)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	return a, nil
}

// New builds the App over an already migrated database.
func New(cfg *config.Config, db *sqlx.DB) (*App, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("app: config and database are required")
	}
	a := &App{
		cfg:      cfg,
		db:       db,
		store:    storage.New(db),
		metrics:  metrics.New(),
		fsm:      state.NewMemoryManager(),
		registry: tg.NewRegistry(),
	}
	a.shop = service.New(a.store, service.Options{
		ShareMode: cfg.Sharing.Mode,
		Serialize: cfg.Telegram.Concurrent,
		Metrics:   a.metrics,
	})

	b, err := bot.New(bot.Options{
		Shopping: a.shop,
		FSM:      a.fsm,
		Names:    chatNames{bot: &a.tg},
		Username: a.username,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if err := b.Register(a.registry); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.bot = b

	if cfg.RateLimit.Backend == coreconfig.RateLimitRedis {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if cfg.Ops.Listen != "" {
		a.ops = ops.New(ops.Options{
			Listen:   cfg.Ops.Listen,
			Ready:    a.store,
			Registry: a.metrics.Registry,
		})
	}
	return a, nil
}

// CoreConfig satisfies cmd.ConfigCarrier.
func (a *App) CoreConfig() *coreconfig.Config {
	return a.cfg.CoreConfig()
}

// Registry exposes the command and callback registry.
func (a *App) Registry() *tg.Registry {
	return a.registry
}

// TelegramRunOptions assembles middlewares, routes and lifecycle hooks.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	var limiter middleware.Limiter
	if a.redis != nil {
		limiter = middleware.NewRedisLimiter(a.redis, a.cfg.Redis.Prefix)
	}
	transport := a.metrics.TransportCollectors()

	var fallback ui.FallbackProvider = a.bot
	routes := router.CommandRoutes(a.registry)
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{
		NotFound: fallback.UnknownCallback(),
	}))
	routes = append(routes, router.TextRoutes(a.fsm, a.registry, router.TextOptions{
		UnknownText: fallback.UnknownText(),
	})...)

	return tg.RunOptions{
		Config:   a.cfg.CoreConfig(),
		Registry: a.registry,
		DispatcherOptions: sender.Options{
			OnFailure: transport.SendFailed,
		},
		Middlewares: tg.DefaultMiddlewares(tg.MiddlewareOptions{
			Config:       a.cfg.CoreConfig(),
			AllowedUsers: a.cfg.Access.AllowedUsers,
			Limiter:      limiter,
			OnLimited: func(c tele.Context) error {
				return tghelpers.Respond(c, "Slow down a little")
			},
			Metrics: transport,
		}),
		Routes:  routes,
		OnStart: a.onStart,
		OnStop:  a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, rt tg.Runtime) error {
	a.tg.Store(rt.Bot)
	logger.Info(ctx, "app", "app.start",
		slog.String("bot", a.username()),
		slog.String("share_mode", a.shop.ShareMode()),
		slog.Int("allowed_users", len(a.cfg.Access.AllowedUsers)),
		slog.String("rate_limit_backend", a.cfg.RateLimit.Backend),
	)
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn(ctx, "app", "redis.ping", slog.String("err", err.Error()))
		}
	}
	if a.ops != nil {
		if err := a.ops.Start(); err != nil {
			return fmt.Errorf("app: ops server: %w", err)
		}
	}
	return nil
}

func (a *App) onStop(ctx context.Context, _ tg.Runtime) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if a.ops != nil {
		if err := a.ops.Stop(stopCtx); err != nil {
			logger.Warn(stopCtx, "app", "ops.stop", slog.String("err", err.Error()))
		}
	}
	return a.Close()
}

// Close releases Redis and the database.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

func (a *App) username() string {
	if b := a.tg.Load(); b != nil && b.Me != nil {
		return b.Me.Username
	}
	return ""
}
