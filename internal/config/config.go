// Package config provides configuration management for the portfolio tracker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	apperrors "portfolio-tracker/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Database      DatabaseConfig     `mapstructure:"database"`
	Portfolio     PortfolioConfig    `mapstructure:"portfolio"`
	Alerts        AlertsConfig       `mapstructure:"alerts"`
	Backup        BackupConfig       `mapstructure:"backup"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	UI            UIConfig           `mapstructure:"ui"`

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// DatabaseConfig holds storage configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// PortfolioConfig holds portfolio defaults.
type PortfolioConfig struct {
	DefaultCurrency string `mapstructure:"default_currency"`
}

// AlertsConfig holds periodic alert evaluation settings.
type AlertsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"` // cron spec or @every
}

// BackupConfig holds backup settings.
type BackupConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Dir           string `mapstructure:"dir"`
	RetentionDays int    `mapstructure:"retention_days"`
	Schedule      string `mapstructure:"schedule"`
	BeforeDelete  bool   `mapstructure:"before_delete"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Desktop DesktopConfig `mapstructure:"desktop"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// DesktopConfig holds desktop notification configuration.
type DesktopConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Voice   bool `mapstructure:"voice"` // macOS only
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       bool   `mapstructure:"file"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
}

// CronParser is the parser used for every schedule in the configuration:
// optional seconds field plus descriptors such as @daily and @every 1m.
var CronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/portfolio-tracker"
	}
	return filepath.Join(home, ".config", "portfolio-tracker")
}

// ConfigFile returns the path of config.toml inside configDir.
func ConfigFile(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("database.path", filepath.Join(configDir, "portfolio.db"))
	v.SetDefault("portfolio.default_currency", "EUR")
	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.schedule", "@every 1m")
	v.SetDefault("backup.enabled", true)
	v.SetDefault("backup.dir", filepath.Join(configDir, "backups"))
	v.SetDefault("backup.retention_days", 30)
	v.SetDefault("backup.schedule", "@daily")
	v.SetDefault("backup.before_delete", true)
	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.desktop.enabled", true)
	v.SetDefault("notifications.desktop.voice", false)
	v.SetDefault("notifications.webhook.enabled", false)
	v.SetDefault("notifications.webhook.timeout", "10s")
	v.SetDefault("notifications.webhook.max_retries", 3)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.path", filepath.Join(configDir, "logs", "portfolio.log"))
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "2006-01-02")
}

// Default returns the built-in configuration rooted at configDir.
func Default(configDir string) *Config {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	v := viper.New()
	setDefaults(v, configDir)
	cfg := &Config{Dir: configDir}
	// Defaults only; decoding cannot fail.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load loads configuration from the specified directory, creating a
// commented template config.toml when none exists.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, fmt.Errorf("creating config.toml: %w", err)
		}
	}

	cfg := &Config{Dir: configDir}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORTFOLIO_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PORTFOLIO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PORTFOLIO_BACKUP_DIR"); v != "" {
		cfg.Backup.Dir = v
	}
	if v := os.Getenv("PORTFOLIO_DEFAULT_CURRENCY"); v != "" {
		cfg.Portfolio.DefaultCurrency = v
	}
	if v := os.Getenv("PORTFOLIO_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
		cfg.Notifications.Webhook.Enabled = true
	}
}

func (c *Config) expandPaths() {
	c.Database.Path = expandHome(c.Database.Path)
	c.Backup.Dir = expandHome(c.Backup.Dir)
	c.Logging.Path = expandHome(c.Logging.Path)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required: %w", apperrors.ErrConfigInvalid)
	}

	c.Portfolio.DefaultCurrency = strings.ToUpper(c.Portfolio.DefaultCurrency)
	if money.GetCurrency(c.Portfolio.DefaultCurrency) == nil {
		return fmt.Errorf("portfolio.default_currency %q is not an ISO 4217 code: %w",
			c.Portfolio.DefaultCurrency, apperrors.ErrConfigInvalid)
	}

	if _, err := CronParser.Parse(c.Alerts.Schedule); err != nil {
		return fmt.Errorf("alerts.schedule %q: %v: %w", c.Alerts.Schedule, err, apperrors.ErrConfigInvalid)
	}
	if _, err := CronParser.Parse(c.Backup.Schedule); err != nil {
		return fmt.Errorf("backup.schedule %q: %v: %w", c.Backup.Schedule, err, apperrors.ErrConfigInvalid)
	}
	if c.Backup.RetentionDays < 1 {
		return fmt.Errorf("backup.retention_days must be at least 1: %w", apperrors.ErrConfigInvalid)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error: %w", c.Logging.Level, apperrors.ErrConfigInvalid)
	}

	if c.Notifications.Webhook.Enabled && !strings.HasPrefix(c.Notifications.Webhook.URL, "http") {
		return fmt.Errorf("notifications.webhook.url must be an http(s) URL: %w", apperrors.ErrConfigInvalid)
	}

	return nil
}
