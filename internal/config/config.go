package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/liqoracle/internal/monitor"
)

// Config represents the complete application configuration. Detection keys
// are top-level so they map one-to-one onto their environment variables
// (BASE_THRESHOLD_USD_PER_SEC and so on); adapter settings are grouped.
type Config struct {
	MessageHistoryLimit              int     `mapstructure:"message_history_limit"`
	BaseThresholdUSDPerSec           float64 `mapstructure:"base_threshold_usd_per_sec"`
	AnalysisWindowSeconds            int     `mapstructure:"analysis_window_seconds"`
	MonitoringIntervalSeconds        int     `mapstructure:"monitoring_interval_seconds"`
	AccelerationThreshold            float64 `mapstructure:"acceleration_threshold"`
	DominanceThreshold               float64 `mapstructure:"dominance_threshold"`
	BiasThreshold                    float64 `mapstructure:"bias_threshold"`
	SummaryCooldownSeconds           int     `mapstructure:"summary_cooldown_seconds"`
	GracePeriodSeconds               int     `mapstructure:"active_idle_transition_grace_period_seconds"`
	SingleEventNotificationThreshold float64 `mapstructure:"single_event_notification_threshold"`

	Telegram TelegramConfig `mapstructure:"telegram"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	API      APIConfig      `mapstructure:"api"`
}

// TelegramConfig holds the message source configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	Chat           string        `mapstructure:"chat"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// DiscordConfig holds the notification sink configuration
type DiscordConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
}

// StorageConfig holds event store configuration
type StorageConfig struct {
	DBPath    string `mapstructure:"db_path"`
	MaxEvents int    `mapstructure:"max_events"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// APIConfig holds the status API configuration
type APIConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	BindAddress string   `mapstructure:"bind_address"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Load reads configuration from an optional .env file, an optional config
// file and the environment, in increasing order of precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	// TELEGRAM_BOT_TOKEN -> telegram.bot_token
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("storage.max_events", "STORAGE_MAX_EVENTS", "LIQUIDATION_HISTORY_LIMIT"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Detection defaults
	v.SetDefault("message_history_limit", 50)
	v.SetDefault("base_threshold_usd_per_sec", 20000.0)
	v.SetDefault("analysis_window_seconds", 300)
	v.SetDefault("monitoring_interval_seconds", 10)
	v.SetDefault("acceleration_threshold", 3.0)
	v.SetDefault("dominance_threshold", 0.75)
	v.SetDefault("bias_threshold", 0.85)
	v.SetDefault("summary_cooldown_seconds", 60)
	v.SetDefault("active_idle_transition_grace_period_seconds", 30)
	v.SetDefault("single_event_notification_threshold", 0.0) // 0 = disabled

	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Discord defaults
	v.SetDefault("discord.webhook_url", "") // empty = notifications disabled
	v.SetDefault("discord.timeout_seconds", 10)
	v.SetDefault("discord.max_retries", 3)
	v.SetDefault("discord.retry_delay_base", "1s")
	v.SetDefault("discord.rate_per_second", 1.0)

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/liqoracle.db")
	v.SetDefault("storage.max_events", 200)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_age_days", 7)

	// API defaults
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.bind_address", ":8080")
	v.SetDefault("api.cors_origins", []string{"*"})
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate detection config
	if c.MessageHistoryLimit < 0 {
		return fmt.Errorf("message_history_limit must not be negative")
	}
	if c.BaseThresholdUSDPerSec <= 0 {
		return fmt.Errorf("base_threshold_usd_per_sec must be positive")
	}
	if c.AnalysisWindowSeconds < 1 {
		return fmt.Errorf("analysis_window_seconds must be at least 1")
	}
	if c.MonitoringIntervalSeconds < 1 {
		return fmt.Errorf("monitoring_interval_seconds must be at least 1")
	}
	if c.AccelerationThreshold <= 0 {
		return fmt.Errorf("acceleration_threshold must be positive")
	}
	if c.DominanceThreshold <= 0 || c.DominanceThreshold > 1 {
		return fmt.Errorf("dominance_threshold must be in (0, 1]")
	}
	if c.BiasThreshold <= 0 || c.BiasThreshold > 1 {
		return fmt.Errorf("bias_threshold must be in (0, 1]")
	}
	if c.SummaryCooldownSeconds < 0 {
		return fmt.Errorf("summary_cooldown_seconds must not be negative")
	}
	if c.GracePeriodSeconds < 0 {
		return fmt.Errorf("active_idle_transition_grace_period_seconds must not be negative")
	}
	if c.SingleEventNotificationThreshold < 0 {
		return fmt.Errorf("single_event_notification_threshold must not be negative")
	}

	// Validate Telegram config
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.Chat == "" {
		return fmt.Errorf("telegram.chat is required")
	}

	// Validate Discord config
	if c.Discord.WebhookURL != "" && !strings.HasPrefix(c.Discord.WebhookURL, "https://") && !strings.HasPrefix(c.Discord.WebhookURL, "http://") {
		return fmt.Errorf("discord.webhook_url must be an http(s) URL")
	}
	if c.Discord.TimeoutSeconds < 1 {
		return fmt.Errorf("discord.timeout_seconds must be at least 1")
	}

	// Validate Storage config
	if c.Storage.MaxEvents < 1 {
		return fmt.Errorf("storage.max_events must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Validate API config
	if c.API.Enabled && c.API.BindAddress == "" {
		return fmt.Errorf("api.bind_address is required when api is enabled")
	}

	return nil
}

// MonitorConfig converts the detection settings for the monitor.
func (c *Config) MonitorConfig() monitor.Config {
	return monitor.Config{
		BaseThreshold:         c.BaseThresholdUSDPerSec,
		AnalysisWindow:        seconds(c.AnalysisWindowSeconds),
		AccelerationThreshold: c.AccelerationThreshold,
		DominanceThreshold:    c.DominanceThreshold,
		BiasThreshold:         c.BiasThreshold,
		SummaryCooldown:       seconds(c.SummaryCooldownSeconds),
		GracePeriod:           seconds(c.GracePeriodSeconds),
	}
}

// MonitoringInterval returns the polling interval.
func (c *Config) MonitoringInterval() time.Duration {
	return seconds(c.MonitoringIntervalSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
