// Package config loads the shopping bot configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coredatabase "github.com/m3rciful/shopbot/core/database"
)

// ErrConfigCreated is returned when the config file was missing and a
// template was written in its place.
var ErrConfigCreated = errors.New("config file created from template; fill it in and restart")

// TokenPlaceholder marks a bot token that was never filled in.
const TokenPlaceholder = "PUT_YOUR_BOT_TOKEN_HERE"

// Sharing modes.
const (
	ShareModeToken   = "token"
	ShareModeOwnerID = "owner_id"
)

// AccessConfig holds the optional allow-list. Empty means everyone may use the bot.
type AccessConfig struct {
	AllowedUsers []int64 `yaml:"allowed_users" envconfig:"ALLOWED_USERS"`
}

// SharingConfig selects how share links reference a list.
type SharingConfig struct {
	Mode string `yaml:"mode" envconfig:"SHARING_MODE"`
}

// RedisConfig is used by the redis rate limit backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

// OpsConfig configures the health and metrics listener; empty Listen disables it.
type OpsConfig struct {
	Listen string `yaml:"listen" envconfig:"OPS_LISTEN"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Access   AccessConfig        `yaml:"access"`
	Sharing  SharingConfig       `yaml:"sharing"`
	Redis    RedisConfig         `yaml:"redis"`
	Ops      OpsConfig           `yaml:"ops"`
}

// CoreConfig exposes the embedded core section.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads the YAML file at path, applies a .env file found next to it and
// then environment overrides. A missing file is replaced by a template and
// ErrConfigCreated is returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if werr := WriteTemplate(path); werr != nil {
			return nil, werr
		}
		return nil, fmt.Errorf("%s: %w", path, ErrConfigCreated)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the configuration and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == TokenPlaceholder {
		return fmt.Errorf("telegram.token is still the placeholder; set it or BOT_TOKEN")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	db := &cfg.Database
	db.Driver = strings.ToLower(strings.TrimSpace(db.Driver))
	switch db.Driver {
	case "":
		db.Driver = coredatabase.DriverSQLite
	case coredatabase.DriverSQLite, coredatabase.DriverPostgres:
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: sqlite, postgres", cfg.Database.Driver)
	}
	if db.Driver == coredatabase.DriverSQLite && strings.TrimSpace(db.Path) == "" {
		db.Path = "shopbot.db"
	}
	if db.Driver == coredatabase.DriverPostgres && strings.TrimSpace(db.Host) == "" {
		return fmt.Errorf("database.host is required for postgres")
	}

	for _, id := range cfg.Access.AllowedUsers {
		if id == 0 {
			return fmt.Errorf("access.allowed_users must not contain 0")
		}
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.Sharing.Mode))
	switch mode {
	case "":
		mode = ShareModeToken
	case ShareModeToken, ShareModeOwnerID:
	default:
		return fmt.Errorf("invalid sharing.mode %q; allowed: token, owner_id", cfg.Sharing.Mode)
	}
	cfg.Sharing.Mode = mode

	if cfg.RateLimit.Backend == coreconfig.RateLimitRedis && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return fmt.Errorf("redis.addr is required when rate_limit.backend is 'redis'")
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0")
	}
	return nil
}

const template = `# Shopping list bot configuration.
telegram:
  token: "` + TokenPlaceholder + `"
  run_mode: longpoll
  concurrent: false

logging:
  level: info
  format: pretty

rate_limit:
  interval_ms: 500
  backend: memory

database:
  driver: sqlite
  path: shopbot.db

access:
  # Telegram user ids allowed to use the bot. Leave empty to allow everyone.
  allowed_users: []

sharing:
  mode: token

ops:
  listen: ""
`

// WriteTemplate creates a config file with placeholder values.
func WriteTemplate(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(template), 0o600); err != nil {
		return fmt.Errorf("write config template: %w", err)
	}
	return nil
}
