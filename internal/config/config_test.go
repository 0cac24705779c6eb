package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Matching.Threshold != 30 {
		t.Errorf("threshold = %d, want 30", cfg.Matching.Threshold)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if got := cfg.Schedule.ParseMatchInterval(); got != 10*time.Minute {
		t.Errorf("interval = %s, want 10m", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/x.db
schedule:
  match_interval: 90s
matching:
  threshold: 45
  prune_returned: true
feeds:
  - name: campus
    url: https://lostfound.example.edu/feed.xml
    category: misc
    location: Front desk
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/x.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if got := cfg.Schedule.ParseMatchInterval(); got != 90*time.Second {
		t.Errorf("interval = %s, want 90s", got)
	}
	if cfg.Matching.Threshold != 45 || !cfg.Matching.PruneReturned {
		t.Errorf("matching = %+v", cfg.Matching)
	}
	if len(cfg.Feeds) != 1 || cfg.Feeds[0].Location != "Front desk" {
		t.Errorf("feeds = %+v", cfg.Feeds)
	}
	if cfg.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", cfg.Log.SlogLevel())
	}
	// Unset keys keep their defaults.
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CAMPUSMATCH_DB_PATH", "/data/env.db")
	t.Setenv("CAMPUSMATCH_JWT_SECRET", "s3cret")
	t.Setenv("CAMPUSMATCH_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "database:\n  path: /tmp/file.db\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/data/env.db" {
		t.Errorf("db path = %q, want env value", cfg.Database.Path)
	}
	if cfg.Server.JWTSecret != "s3cret" {
		t.Errorf("jwt secret not overridden")
	}
	if cfg.Log.SlogLevel() != slog.LevelWarn {
		t.Errorf("level = %v, want warn", cfg.Log.SlogLevel())
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "matching: [", "parse config"},
		{"threshold range", "matching:\n  threshold: 101\n", "out of range"},
		{"feed without url", "feeds:\n  - name: x\n", "feeds[0]"},
		{"feed without location", "feeds:\n  - name: office\n    url: https://lostfound.example.edu/feed.xml\n    category: misc\n", "feeds[0]: location is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseMatchIntervalFallback(t *testing.T) {
	for _, v := range []string{"", "soon", "-5m"} {
		if got := (ScheduleConfig{MatchInterval: v}).ParseMatchInterval(); got != 10*time.Minute {
			t.Errorf("%q -> %s, want 10m", v, got)
		}
	}
}
