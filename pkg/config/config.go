// Package config provides central event-monitor configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root monitor configuration.
type Config struct {
	NATS      NATSConfig      `yaml:"nats"`
	Store     StoreConfig     `yaml:"store"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type NATSConfig struct {
	// URL of the NATS server, e.g. nats://localhost:4222. Overridden by NATS_URL.
	URL string `yaml:"url"`
	// Subject tree to subscribe to. Default "events.>".
	Subject string `yaml:"subject"`
}

type StoreConfig struct {
	// DSN is the Postgres connection string. Overridden by POSTGRES_DSN.
	DSN string `yaml:"dsn"`
	// RetentionDays keeps events this many days. Default 30.
	RetentionDays int `yaml:"retention_days"`
	// SweepIntervalMinutes between retention sweeps. Default 60.
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

type MonitorConfig struct {
	// BufferSize bounds the live event buffer. Default 1000.
	BufferSize int `yaml:"buffer_size"`
	// StoreTimeoutSeconds bounds each insert. Default 5.
	StoreTimeoutSeconds int `yaml:"store_timeout_seconds"`
}

type AlertsConfig struct {
	// RulesDir holds the YAML rule files. Empty = no rules loaded.
	RulesDir string `yaml:"rules_dir"`
	// Workers dispatching actions. Default 4.
	Workers int `yaml:"workers"`
	// QueueSize of pending dispatches. Default 256.
	QueueSize int `yaml:"queue_size"`
	// TimeoutSeconds per dispatch. Default 10.
	TimeoutSeconds int        `yaml:"timeout_seconds"`
	SMTP           SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	// Addr host:port of the mail relay. Empty disables email actions.
	Addr string `yaml:"addr"`
	From string `yaml:"from"`
}

type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	// Addr to listen on. Default ":8080".
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error. Default info.
}

// Load reads config from path. If path is empty, returns default config.
// Environment overrides are applied either way.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config yaml: %w", err)
		}
	}
	c.applyEnv()
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:     "nats://localhost:4222",
			Subject: "events.>",
		},
		Store: StoreConfig{
			RetentionDays:        30,
			SweepIntervalMinutes: 60,
		},
		Monitor: MonitorConfig{
			BufferSize:          1000,
			StoreTimeoutSeconds: 5,
		},
		Alerts: AlertsConfig{
			Workers:        4,
			QueueSize:      256,
			TimeoutSeconds: 10,
		},
		Dashboard: DashboardConfig{
			Enabled: false,
			Addr:    ":8080",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Store.DSN = v
	}
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.NATS.Subject == "" {
		c.NATS.Subject = "events.>"
	}
	if c.Store.RetentionDays <= 0 {
		c.Store.RetentionDays = 30
	}
	if c.Store.SweepIntervalMinutes <= 0 {
		c.Store.SweepIntervalMinutes = 60
	}
	if c.Monitor.BufferSize <= 0 {
		c.Monitor.BufferSize = 1000
	}
	if c.Monitor.StoreTimeoutSeconds <= 0 {
		c.Monitor.StoreTimeoutSeconds = 5
	}
	if c.Alerts.Workers <= 0 {
		c.Alerts.Workers = 4
	}
	if c.Alerts.QueueSize <= 0 {
		c.Alerts.QueueSize = 256
	}
	if c.Alerts.TimeoutSeconds <= 0 {
		c.Alerts.TimeoutSeconds = 10
	}
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("config: nats.url is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown logging level %q", c.Logging.Level)
	}
	return nil
}

// RetentionAge is the oldest event age kept by the retention sweeper.
func (c *Config) RetentionAge() time.Duration {
	return time.Duration(c.Store.RetentionDays) * 24 * time.Hour
}

// SweepInterval is the pause between retention sweeps.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Store.SweepIntervalMinutes) * time.Minute
}

// StoreTimeout bounds each event insert.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Monitor.StoreTimeoutSeconds) * time.Second
}

// DispatchTimeout bounds each alert action dispatch.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.Alerts.TimeoutSeconds) * time.Second
}
