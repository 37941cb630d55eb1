package cmd

import (
	"context"
	"errors"
	"testing"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coretelegram "github.com/m3rciful/shopbot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct{ opts coretelegram.RunOptions }

func (a app) TelegramRunOptions() (coretelegram.RunOptions, error) { return a.opts, nil }

func TestRunRequiresHooks(t *testing.T) {
	if err := Run(Options{}); err == nil {
		t.Fatal("expected error without LoadConfig")
	}
}

func TestRunPropagatesLoadError(t *testing.T) {
	loadErr := errors.New("config created")
	err := Run(Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig:        func(string) (ConfigCarrier, error) { return nil, loadErr },
		Bootstrap:         func(ConfigCarrier) (TelegramApp, error) { return nil, nil },
	})
	if !errors.Is(err, loadErr) {
		t.Fatalf("err = %v, want wrapped %v", err, loadErr)
	}
}

func TestRunWrapsLifecycleHooks(t *testing.T) {
	t.Setenv("SHOPBOT_TEST_CONFIG", "from-env.yaml")

	var (
		loadedPath   string
		started      bool
		stopped      bool
		loggerClosed bool
	)
	err := Run(Options{
		ConfigEnvVar:      "SHOPBOT_TEST_CONFIG",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loadedPath = path
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(ConfigCarrier) (TelegramApp, error) {
			return app{opts: coretelegram.RunOptions{
				OnStart: func(context.Context, coretelegram.Runtime) error { started = true; return nil },
				OnStop:  func(context.Context, coretelegram.Runtime) error { stopped = true; return nil },
			}}, nil
		},
		ShutdownLogger: func() error { loggerClosed = true; return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if loadedPath != "from-env.yaml" {
		t.Fatalf("loaded %q, want env path", loadedPath)
	}
	if !started || !stopped || !loggerClosed {
		t.Fatalf("started=%v stopped=%v loggerClosed=%v", started, stopped, loggerClosed)
	}
}
