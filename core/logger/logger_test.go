package logger

import (
	"log/slog"
	"testing"

	coreconfig "github.com/m3rciful/shopbot/core/config"
)

func TestParseRatio(t *testing.T) {
	cases := []struct {
		in       string
		num, den int
	}{
		{"1/10", 1, 10},
		{" 2 / 5 ", 2, 5},
		{"20", 1, 20},
		{"0", 0, 0},
		{"x/5", 0, 0},
		{"", 0, 0},
	}
	for _, tc := range cases {
		num, den := parseRatio(tc.in)
		if num != tc.num || den != tc.den {
			t.Errorf("parseRatio(%q) = %d/%d, want %d/%d", tc.in, num, den, tc.num, tc.den)
		}
	}
}

func TestRatioSamplerCycle(t *testing.T) {
	s := newRatioSampler(2, 3)
	var got []bool
	for i := 0; i < 6; i++ {
		got = append(got, s.Allow())
	}
	want := []bool{true, true, false, true, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("allow sequence = %v, want %v", got, want)
		}
	}

	s.Set(0, 0)
	if !s.Allow() {
		t.Fatal("disabled sampler must allow everything")
	}
	s.Set(5, 2)
	if !s.Allow() || !s.Allow() {
		t.Fatal("numerator is capped at the denominator")
	}
}

func TestSettingsFrom(t *testing.T) {
	s := settingsFrom(nil)
	if s.format != formatJSON || s.level != slog.LevelInfo || s.num != 1 || s.den != 50 {
		t.Fatalf("defaults = %+v", s)
	}

	s = settingsFrom(&coreconfig.Config{Logging: coreconfig.LoggingConfig{
		Level:       "warning",
		Profile:     "Dev",
		DebugSample: "0",
		KeysOrder:   "event, ,owner_id",
		Dir:         "/var/log/shopbot",
		BotFile:     "bot.log",
	}})
	if s.format != formatKV {
		t.Fatalf("dev profile format = %q", s.format)
	}
	if s.level != slog.LevelWarn || s.num != 0 || s.den != 0 {
		t.Fatalf("settings = %+v", s)
	}
	if len(s.order) != 2 || s.order[1] != "owner_id" {
		t.Fatalf("order = %v", s.order)
	}
	if s.file != "/var/log/shopbot/bot.log" || s.profile != "dev" {
		t.Fatalf("file = %q profile = %q", s.file, s.profile)
	}
}

func TestSanitizeLimitAndCompactRID(t *testing.T) {
	if got := SanitizeLimit("Яблоки\u200b зелёные", 6); got != "Яблоки" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got := SanitizeLimit("tea", 0); got != "" {
		t.Fatalf("zero limit = %q", got)
	}
	if got := CompactRID(BuildRID(36, 72, 1)); got != "10.20.1" {
		t.Fatalf("CompactRID = %q", got)
	}
	if got := CompactRID("not-a-rid"); got != "not-a-rid" {
		t.Fatalf("CompactRID passthrough = %q", got)
	}
}
