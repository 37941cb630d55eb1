package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	"github.com/m3rciful/shopbot/core/database"
	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/internal/config"
	"github.com/m3rciful/shopbot/migrations"

	tele "gopkg.in/telebot.v4"
)

func newTestApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := &config.Config{
		Config: coreconfig.Config{
			Telegram:  coreconfig.TelegramConfig{Token: "123:abc"},
			RateLimit: coreconfig.RateLimitConfig{IntervalMS: 300},
		},
		Database: database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "shop.db")},
	}
	if mutate != nil {
		mutate(cfg)
	}
	if err := config.Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	db, err := database.Connect(cfg.Database)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.RunMigrations(db, cfg.Database, migrations.FS); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	a, err := New(cfg, db)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func middlewareNames(mws []tg.Middleware) []string {
	out := make([]string, 0, len(mws))
	for _, m := range mws {
		out = append(out, m.Name)
	}
	return out
}

func TestRunOptionsDefault(t *testing.T) {
	a := newTestApp(t, nil)
	opts, err := a.TelegramRunOptions()
	if err != nil {
		t.Fatalf("run options: %v", err)
	}
	if got := middlewareNames(opts.Middlewares); len(got) != 4 || got[1] != "rate_limit" {
		t.Fatalf("middlewares = %v", got)
	}
	// six commands, one callback route, one text route
	if len(opts.Routes) != 8 {
		t.Fatalf("routes = %d", len(opts.Routes))
	}
	if opts.DispatcherOptions.OnFailure == nil {
		t.Fatal("send failures are not counted")
	}
	if len(a.Registry().ListCallbacks()) == 0 {
		t.Fatal("no callbacks registered")
	}
}

func TestRunOptionsAllowListAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestApp(t, func(c *config.Config) {
		c.Access.AllowedUsers = []int64{1, 2}
		c.RateLimit.Backend = coreconfig.RateLimitRedis
		c.Redis.Addr = mr.Addr()
	})
	if a.redis == nil {
		t.Fatal("redis client not built")
	}
	opts, _ := a.TelegramRunOptions()
	got := middlewareNames(opts.Middlewares)
	want := []string{"recover", "access", "rate_limit", "logger", "metrics"}
	if len(got) != len(want) {
		t.Fatalf("middlewares = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("middlewares = %v, want %v", got, want)
		}
	}
	if err := a.redis.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
}

func TestLifecycleHooks(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) { c.Ops.Listen = "127.0.0.1:0" })
	rt := tg.Runtime{Bot: &tele.Bot{Me: &tele.User{Username: "shopbot"}}}

	if err := a.onStart(context.Background(), rt); err != nil {
		t.Fatalf("on start: %v", err)
	}
	if got := a.username(); got != "shopbot" {
		t.Fatalf("username = %q", got)
	}
	if err := a.onStop(context.Background(), rt); err != nil {
		t.Fatalf("on stop: %v", err)
	}
	if err := a.store.Ping(context.Background()); err == nil {
		t.Fatal("database still open after stop")
	}
}

func TestFormatChatName(t *testing.T) {
	cases := []struct {
		chat tele.Chat
		want string
	}{
		{tele.Chat{FirstName: "Ann", LastName: "Lee", Username: "ann"}, "Ann Lee (@ann)"},
		{tele.Chat{FirstName: "Ann"}, "Ann"},
		{tele.Chat{Username: "ann"}, "@ann"},
		{tele.Chat{}, ""},
	}
	for _, tc := range cases {
		if got := formatChatName(&tc.chat); got != tc.want {
			t.Errorf("formatChatName(%+v) = %q, want %q", tc.chat, got, tc.want)
		}
	}
}

func TestChatNamesBeforeStart(t *testing.T) {
	a := newTestApp(t, nil)
	if _, err := (chatNames{bot: &a.tg}).DisplayName(context.Background(), 1); err == nil {
		t.Fatal("expected error before the bot started")
	}
}
