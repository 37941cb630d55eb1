// Package cmd is the process entry point shared by bot binaries: it resolves
// the config path, bootstraps the application and runs Telegram until a
// shutdown signal arrives.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	"github.com/m3rciful/shopbot/core/logger"
	coretelegram "github.com/m3rciful/shopbot/core/telegram"
)

const defaultConfigEnv = "CONFIG_PATH"

// ConfigCarrier is any app config that embeds the core config.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp builds the options RunTelegram needs.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options holds the hooks Run drives. LoadConfig and Bootstrap are required;
// the rest fall back to the core implementations.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	// Signals cancel the run context; defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// Run loads the config, bootstraps the app and blocks in the Telegram runtime.
func Run(opts Options) error {
	if opts.LoadConfig == nil || opts.Bootstrap == nil {
		return errors.New("cmd: LoadConfig and Bootstrap are required")
	}
	path, err := opts.configPath()
	if err != nil {
		return err
	}

	log.Printf("loading config: %s", path)
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: load config: %w", err)
	}
	if cfg == nil || cfg.CoreConfig() == nil {
		return errors.New("cmd: config has no core section")
	}

	app, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}
	defer opts.closeLogger()

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	announce(&runOpts, time.Now())

	ctx, cancel := signal.NotifyContext(context.Background(), opts.signals()...)
	defer cancel()

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

func (o Options) configPath() (string, error) {
	env := o.ConfigEnvVar
	if env == "" {
		env = defaultConfigEnv
	}
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if o.DefaultConfigPath != "" {
		return o.DefaultConfigPath, nil
	}
	return "", fmt.Errorf("cmd: no config path in $%s and no default", env)
}

func (o Options) signals() []os.Signal {
	if len(o.Signals) > 0 {
		return o.Signals
	}
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

func (o Options) closeLogger() {
	shutdown := o.ShutdownLogger
	if shutdown == nil {
		shutdown = logger.Shutdown
	}
	if err := shutdown(); err != nil {
		log.Printf("logger shutdown: %v", err)
	}
}

// announce logs app.ready after the app's own OnStart succeeds and
// app.shutdown before its OnStop runs.
func announce(opts *coretelegram.RunOptions, startedAt time.Time) {
	start, stop := opts.OnStart, opts.OnStop
	opts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if start != nil {
			if err := start(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, "app", "app.ready",
			slog.Duration("startup", logger.RoundMS(time.Since(startedAt))))
		return nil
	}
	opts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, "app", "app.shutdown")
		if stop != nil {
			return stop(ctx, rt)
		}
		return nil
	}
}
