package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Matching MatchingConfig `yaml:"matching"`
	Server   ServerConfig   `yaml:"server"`
	Feeds    []FeedConfig   `yaml:"feeds"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig configures the generation interval.
type ScheduleConfig struct {
	MatchInterval string `yaml:"match_interval"`
}

// ParseMatchInterval returns the match interval as time.Duration.
func (s ScheduleConfig) ParseMatchInterval() time.Duration {
	d, err := time.ParseDuration(s.MatchInterval)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// MatchingConfig configures candidate generation.
type MatchingConfig struct {
	Threshold     int  `yaml:"threshold"`
	PruneReturned bool `yaml:"prune_returned"` // drop matches of returned listings after each pass
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

// FeedConfig is an RSS/Atom feed of found items, e.g. a lost-property office.
type FeedConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"` // used when an entry carries none
	Location string `yaml:"location"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level to a slog.Level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./campusmatch.db"},
		Schedule: ScheduleConfig{MatchInterval: "10m"},
		Matching: MatchingConfig{Threshold: 30},
		Server:   ServerConfig{Port: 8080},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Matching.Threshold < 0 || cfg.Matching.Threshold > 100 {
		return nil, fmt.Errorf("matching.threshold %d out of range 0-100", cfg.Matching.Threshold)
	}
	for i, f := range cfg.Feeds {
		if f.Name == "" || f.URL == "" {
			return nil, fmt.Errorf("feeds[%d]: name and url are required", i)
		}
		if strings.TrimSpace(f.Location) == "" {
			return nil, fmt.Errorf("feeds[%d]: location is required", i)
		}
	}
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CAMPUSMATCH_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CAMPUSMATCH_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("CAMPUSMATCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
