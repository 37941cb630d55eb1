package config

import "testing"

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "123:abc", RunMode: "polling"}}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q, want %q", cfg.Telegram.RunMode, RunModeLongpoll)
	}
	if cfg.RateLimit.Backend != RateLimitMemory {
		t.Fatalf("rate limit backend = %q, want %q", cfg.RateLimit.Backend, RateLimitMemory)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]Config{
		"missing token":   {},
		"bad run mode":    {Telegram: TelegramConfig{Token: "t", RunMode: "carrier-pigeon"}},
		"webhook no url":  {Telegram: TelegramConfig{Token: "t", RunMode: RunModeWebhook}},
		"bad backend":     {Telegram: TelegramConfig{Token: "t"}, RateLimit: RateLimitConfig{Backend: "memcached"}},
		"bad exclusion":   {Telegram: TelegramConfig{Token: "t"}, RateLimit: RateLimitConfig{ExcludeUpdates: []string{"poll"}}},
		"negative window": {Telegram: TelegramConfig{Token: "t"}, RateLimit: RateLimitConfig{IntervalMS: -1}},
	}
	for name, cfg := range cases {
		cfg := cfg
		t.Run(name, func(t *testing.T) {
			if err := Normalize(&cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNormalizeLowercasesExclusions(t *testing.T) {
	cfg := &Config{
		Telegram:  TelegramConfig{Token: "t"},
		RateLimit: RateLimitConfig{ExcludeUpdates: []string{" Callback "}},
	}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.RateLimit.ExcludeUpdates[0] != UpdateCallback {
		t.Fatalf("exclude = %q", cfg.RateLimit.ExcludeUpdates[0])
	}
}
