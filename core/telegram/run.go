package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	"github.com/m3rciful/shopbot/core/logger"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/netutil"
	tgsender "github.com/m3rciful/shopbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to an endpoint accepted by tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	// KeepWebhook skips removing a leftover webhook before long polling.
	KeepWebhook bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is what lifecycle hooks get to see of the running bot.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram connects the bot, mounts middlewares and routes, and serves
// updates until ctx is cancelled. Cancellation is a clean stop.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if cfg == nil {
		return errors.New("telegram: nil config provided")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	started := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:       cfg.Telegram.Token,
		Poller:      NewPoller(cfg),
		Client:      NewHTTPClient(ClientOptions{}),
		Synchronous: !cfg.Telegram.Concurrent,
		OnError:     logHandlerError,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	logMode(ctx, bot, cfg, time.Since(started))
	if _, polling := bot.Poller.(*tele.LongPoller); polling && !opts.KeepWebhook {
		removeWebhook(ctx, bot)
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	defer dispatcher.Close()

	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: opts.Registry}
	mount(bot, rt, opts)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runErr := serve(ctx, bot)

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(ctx, rt)
	}
	if stopErr != nil {
		return stopErr
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// mount installs the dispatcher helper, global middlewares, routes and the
// command menu, in that order.
func mount(bot *tele.Bot, rt Runtime, opts RunOptions) {
	bot.Use(tghelpers.DispatcherMiddleware(rt.Dispatcher))
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	InitBotCommands(bot, rt.Registry)
}

// serve runs the poller until it stops on its own or ctx is done.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}

func logHandlerError(err error, c tele.Context) {
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.Error(ctx, "tg", "tg.error",
		slog.String("err", logger.SanitizeLimit(netutil.Redact(err), 256)),
	)
}

func logMode(ctx context.Context, bot *tele.Bot, cfg *coreconfig.Config, took time.Duration) {
	switch p := bot.Poller.(type) {
	case *tele.Webhook:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", took),
		)
	default:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", "polling"),
			slog.Int("timeout_seconds", int(longPollTimeout(cfg)/time.Second)),
			slog.Bool("concurrent", cfg.Telegram.Concurrent),
			slog.Duration("duration", took),
		)
	}
}

func removeWebhook(ctx context.Context, bot *tele.Bot) {
	if err := bot.RemoveWebhook(false); err != nil {
		logger.Warn(ctx, "tg", "delete_webhook",
			slog.String("status", "fail"),
			slog.String("err", netutil.Redact(err)),
		)
		return
	}
	logger.Info(ctx, "tg", "delete_webhook", slog.String("status", "ok"))
}
