package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sharetimer/sharetimer/internal/timer"
)

// Config is the full server configuration. Values come from an optional yaml
// file, overridden by environment variables, with sane defaults for anything
// left unset.
type Config struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // "console" or "json"
	} `yaml:"log"`

	Timers struct {
		InactivityTimeoutMinutes int `yaml:"inactivity_timeout_minutes"`
		SweepIntervalMinutes     int `yaml:"sweep_interval_minutes"`
	} `yaml:"timers"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Port = "3000"
	cfg.AllowedOrigins = []string{"*"}
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	return cfg
}

// loadConfig reads the yaml file at path if it exists, then applies
// environment overrides.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg.sanitize(), nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Timers.InactivityTimeoutMinutes = getEnvAsInt("INACTIVITY_TIMEOUT_MINUTES", c.Timers.InactivityTimeoutMinutes)
	c.Timers.SweepIntervalMinutes = getEnvAsInt("SWEEP_INTERVAL_MINUTES", c.Timers.SweepIntervalMinutes)
}

func (c Config) sanitize() Config {
	if c.Port == "" {
		c.Port = "3000"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.Timers.InactivityTimeoutMinutes < 0 {
		c.Timers.InactivityTimeoutMinutes = 0
	}
	if c.Timers.SweepIntervalMinutes < 0 {
		c.Timers.SweepIntervalMinutes = 0
	}
	return c
}

// timerConfig converts the minute-granularity settings into the timer
// package's config; zeros fall through to that package's defaults.
func (c Config) timerConfig() timer.Config {
	return timer.Config{
		InactivityTimeout: time.Duration(c.Timers.InactivityTimeoutMinutes) * time.Minute,
		SweepInterval:     time.Duration(c.Timers.SweepIntervalMinutes) * time.Minute,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
