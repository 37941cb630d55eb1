package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coredatabase "github.com/m3rciful/shopbot/core/database"
)

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadMissingWritesTemplate(t *testing.T) {
	unsetEnv(t, "BOT_TOKEN")
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	_, err := Load(path)
	if !errors.Is(err, ErrConfigCreated) {
		t.Fatalf("err = %v, want ErrConfigCreated", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("template not written: %v", statErr)
	}

	// The untouched template is rejected until the token is filled in.
	if _, err := Load(path); err == nil {
		t.Fatal("placeholder token accepted")
	}
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	unsetEnv(t, "BOT_TOKEN", "SHARING_MODE", "DB_PATH", "OPS_LISTEN")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
telegram:
  token: "from-yaml"
access:
  allowed_users: [1, 2]
sharing:
  mode: OWNER_ID
`)
	t.Setenv("ALLOWED_USERS", "5,6,7")
	writeFile(t, filepath.Join(dir, ".env"), "BOT_TOKEN=from-dotenv\nOPS_LISTEN=:9090\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-dotenv" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if got := cfg.Access.AllowedUsers; len(got) != 3 || got[0] != 5 || got[2] != 7 {
		t.Fatalf("allowed users = %v", got)
	}
	if cfg.Sharing.Mode != ShareModeOwnerID {
		t.Fatalf("mode = %q", cfg.Sharing.Mode)
	}
	if cfg.Ops.Listen != ":9090" {
		t.Fatalf("ops listen = %q", cfg.Ops.Listen)
	}
	if cfg.Database.Driver != coredatabase.DriverSQLite || cfg.Database.Path != "shopbot.db" {
		t.Fatalf("database defaults = %+v", cfg.Database)
	}
	if cfg.CoreConfig().Telegram.RunMode != coreconfig.RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.CoreConfig().Telegram.RunMode)
	}
}

func TestNormalizeRejects(t *testing.T) {
	base := func() Config {
		return Config{Config: coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "t"}}}
	}
	cases := map[string]func(*Config){
		"bad share mode": func(c *Config) { c.Sharing.Mode = "public" },
		"bad driver":     func(c *Config) { c.Database.Driver = "mysql" },
		"postgres host":  func(c *Config) { c.Database.Driver = "postgres" },
		"zero user":      func(c *Config) { c.Access.AllowedUsers = []int64{0} },
		"redis no addr":  func(c *Config) { c.RateLimit.Backend = "redis" },
		"placeholder":    func(c *Config) { c.Telegram.Token = TokenPlaceholder },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(&cfg)
			if err := Normalize(&cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	cfg := base()
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("valid config: %v", err)
	}
	if cfg.Sharing.Mode != ShareModeToken {
		t.Fatalf("default mode = %q", cfg.Sharing.Mode)
	}
}
