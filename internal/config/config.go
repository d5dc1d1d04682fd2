// Package config loads application settings from defaults, an optional YAML
// file, and NEPHRON_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/nephron-sim/internal/engine"
)

// Controller holds optional overrides of the controller defaults. Zero values keep the default.
type Controller struct {
	Days          int                   `yaml:"days"`
	BaselineGFR   float64               `yaml:"baseline_gfr"`
	BodyWater     float64               `yaml:"body_water"`
	LearningRates *engine.LearningRates `yaml:"learning_rates"`
}

// Config holds the application configuration.
type Config struct {
	DBPath    string `yaml:"db"`
	OutputDir string `yaml:"output_dir"`
	LogLevel  string `yaml:"log_level"`

	Port        int           `yaml:"port"`
	AdminKey    string        `yaml:"admin_key"`
	MaxDays     int           `yaml:"max_days"`
	RateLimit   int           `yaml:"rate_limit"`
	RateWindow  time.Duration `yaml:"rate_window"`
	CORSOrigins []string      `yaml:"cors_origins"`

	Controller Controller `yaml:"controller"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DBPath:     "nephron.db",
		OutputDir:  "out",
		LogLevel:   "info",
		Port:       8080,
		MaxDays:    365,
		RateLimit:  30,
		RateWindow: time.Hour,
	}
}

// Load builds the configuration. When path is empty NEPHRON_CONFIG is
// consulted; a missing file at an explicit path is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("NEPHRON_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DBPath = envOrDefault("NEPHRON_DB", c.DBPath)
	c.OutputDir = envOrDefault("NEPHRON_OUTPUT_DIR", c.OutputDir)
	c.LogLevel = envOrDefault("NEPHRON_LOG_LEVEL", c.LogLevel)
	c.Port = envIntOrDefault("NEPHRON_PORT", c.Port)
	c.AdminKey = envOrDefault("NEPHRON_ADMIN_KEY", c.AdminKey)
	c.MaxDays = envIntOrDefault("NEPHRON_MAX_DAYS", c.MaxDays)
	if v := os.Getenv("NEPHRON_CORS_ORIGINS"); v != "" {
		c.CORSOrigins = strings.Split(v, ",")
	}
}

// Validate rejects settings the server or CLI cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.MaxDays < 1 {
		errs = append(errs, fmt.Errorf("max_days must be positive, got %d", c.MaxDays))
	}
	if c.RateLimit < 1 {
		errs = append(errs, fmt.Errorf("rate_limit must be positive, got %d", c.RateLimit))
	}
	if c.RateWindow <= 0 {
		errs = append(errs, fmt.Errorf("rate_window must be positive, got %s", c.RateWindow))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ControllerConfig(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ControllerConfig returns the engine defaults with this file's overrides applied.
func (c Config) ControllerConfig() (engine.Config, error) {
	cfg := engine.DefaultConfig()
	o := c.Controller
	if o.Days > 0 {
		cfg.Days = o.Days
	}
	if o.BaselineGFR > 0 {
		cfg.BaselineGFR = o.BaselineGFR
	}
	if o.BodyWater > 0 {
		cfg.BodyWater = o.BodyWater
	}
	if o.LearningRates != nil {
		cfg.LearningRates = *o.LearningRates
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("controller: %w", err)
	}
	return cfg, nil
}

// Level returns the configured slog level.
func (c Config) Level() slog.Level {
	lvl, _ := ParseLevel(c.LogLevel)
	return lvl
}

// ParseLevel maps debug/info/warn/error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return lvl, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("ignoring non-integer env value", "key", key, "value", v)
	}
	return defaultVal
}
