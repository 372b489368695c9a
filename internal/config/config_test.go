package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// validEnv sets the two required keys so Validate can pass.
func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "test_token")
	t.Setenv("TELEGRAM_CHAT", "@liqfeed")
}

func TestLoad_Defaults(t *testing.T) {
	validEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MessageHistoryLimit != 50 {
		t.Errorf("MessageHistoryLimit = %d, want 50", cfg.MessageHistoryLimit)
	}
	if cfg.BaseThresholdUSDPerSec != 20000 {
		t.Errorf("BaseThresholdUSDPerSec = %f, want 20000", cfg.BaseThresholdUSDPerSec)
	}
	if cfg.AnalysisWindowSeconds != 300 {
		t.Errorf("AnalysisWindowSeconds = %d, want 300", cfg.AnalysisWindowSeconds)
	}
	if cfg.MonitoringIntervalSeconds != 10 {
		t.Errorf("MonitoringIntervalSeconds = %d, want 10", cfg.MonitoringIntervalSeconds)
	}
	if cfg.AccelerationThreshold != 3.0 {
		t.Errorf("AccelerationThreshold = %f, want 3.0", cfg.AccelerationThreshold)
	}
	if cfg.DominanceThreshold != 0.75 {
		t.Errorf("DominanceThreshold = %f, want 0.75", cfg.DominanceThreshold)
	}
	if cfg.BiasThreshold != 0.85 {
		t.Errorf("BiasThreshold = %f, want 0.85", cfg.BiasThreshold)
	}
	if cfg.SummaryCooldownSeconds != 60 {
		t.Errorf("SummaryCooldownSeconds = %d, want 60", cfg.SummaryCooldownSeconds)
	}
	if cfg.GracePeriodSeconds != 30 {
		t.Errorf("GracePeriodSeconds = %d, want 30", cfg.GracePeriodSeconds)
	}
	if cfg.SingleEventNotificationThreshold != 0 {
		t.Errorf("SingleEventNotificationThreshold = %f, want 0", cfg.SingleEventNotificationThreshold)
	}
	if cfg.Storage.MaxEvents != 200 {
		t.Errorf("Storage.MaxEvents = %d, want 200", cfg.Storage.MaxEvents)
	}
	if cfg.Telegram.RetryDelayBase != time.Second {
		t.Errorf("Telegram.RetryDelayBase = %v, want 1s", cfg.Telegram.RetryDelayBase)
	}
	if len(cfg.API.CORSOrigins) != 1 || cfg.API.CORSOrigins[0] != "*" {
		t.Errorf("API.CORSOrigins = %v, want [*]", cfg.API.CORSOrigins)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed on defaults: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	validEnv(t)
	t.Setenv("BASE_THRESHOLD_USD_PER_SEC", "1500.5")
	t.Setenv("ANALYSIS_WINDOW_SECONDS", "120")
	t.Setenv("ACTIVE_IDLE_TRANSITION_GRACE_PERIOD_SECONDS", "5")
	t.Setenv("SINGLE_EVENT_NOTIFICATION_THRESHOLD", "250000")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.com/api/webhooks/1/abc")
	t.Setenv("LIQUIDATION_HISTORY_LIMIT", "75")
	t.Setenv("LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BaseThresholdUSDPerSec != 1500.5 {
		t.Errorf("BaseThresholdUSDPerSec = %f, want 1500.5", cfg.BaseThresholdUSDPerSec)
	}
	if cfg.AnalysisWindowSeconds != 120 {
		t.Errorf("AnalysisWindowSeconds = %d, want 120", cfg.AnalysisWindowSeconds)
	}
	if cfg.GracePeriodSeconds != 5 {
		t.Errorf("GracePeriodSeconds = %d, want 5", cfg.GracePeriodSeconds)
	}
	if cfg.SingleEventNotificationThreshold != 250000 {
		t.Errorf("SingleEventNotificationThreshold = %f, want 250000", cfg.SingleEventNotificationThreshold)
	}
	if cfg.Discord.WebhookURL != "https://discord.com/api/webhooks/1/abc" {
		t.Errorf("Discord.WebhookURL = %q", cfg.Discord.WebhookURL)
	}
	if cfg.Storage.MaxEvents != 75 {
		t.Errorf("Storage.MaxEvents = %d, want 75", cfg.Storage.MaxEvents)
	}
	if cfg.Telegram.Chat != "@liqfeed" {
		t.Errorf("Telegram.Chat = %q", cfg.Telegram.Chat)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	mc := cfg.MonitorConfig()
	if mc.AnalysisWindow != 2*time.Minute || mc.GracePeriod != 5*time.Second || mc.SummaryCooldown != time.Minute {
		t.Errorf("MonitorConfig durations = %+v", mc)
	}
	if cfg.MonitoringInterval() != 10*time.Second {
		t.Errorf("MonitoringInterval = %v, want 10s", cfg.MonitoringInterval())
	}
}

func TestLoad_NonNumeric(t *testing.T) {
	validEnv(t)
	t.Setenv("ANALYSIS_WINDOW_SECONDS", "five minutes")

	if _, err := Load(""); err == nil {
		t.Error("Expected error for non-numeric ANALYSIS_WINDOW_SECONDS")
	}
}

func TestLoad_File(t *testing.T) {
	validEnv(t)
	content := `
base_threshold_usd_per_sec: 5000
bias_threshold: 0.9
storage:
  db_path: "./data/test.db"
logging:
  format: "json"
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	// Environment wins over the file.
	t.Setenv("BIAS_THRESHOLD", "0.8")

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BaseThresholdUSDPerSec != 5000 {
		t.Errorf("BaseThresholdUSDPerSec = %f, want 5000", cfg.BaseThresholdUSDPerSec)
	}
	if cfg.BiasThreshold != 0.8 {
		t.Errorf("BiasThreshold = %f, want 0.8", cfg.BiasThreshold)
	}
	if cfg.Storage.DBPath != "./data/test.db" {
		t.Errorf("Storage.DBPath = %q", cfg.Storage.DBPath)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q", cfg.Logging.Format)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/liqoracle.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	validEnv(t)
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"zero threshold", func(c *Config) { c.BaseThresholdUSDPerSec = 0 }, "base_threshold_usd_per_sec"},
		{"zero window", func(c *Config) { c.AnalysisWindowSeconds = 0 }, "analysis_window_seconds"},
		{"zero interval", func(c *Config) { c.MonitoringIntervalSeconds = 0 }, "monitoring_interval_seconds"},
		{"negative acceleration", func(c *Config) { c.AccelerationThreshold = -1 }, "acceleration_threshold"},
		{"dominance above one", func(c *Config) { c.DominanceThreshold = 1.5 }, "dominance_threshold"},
		{"zero bias", func(c *Config) { c.BiasThreshold = 0 }, "bias_threshold"},
		{"negative cooldown", func(c *Config) { c.SummaryCooldownSeconds = -1 }, "summary_cooldown_seconds"},
		{"negative grace", func(c *Config) { c.GracePeriodSeconds = -1 }, "grace_period"},
		{"negative single event", func(c *Config) { c.SingleEventNotificationThreshold = -1 }, "single_event"},
		{"negative history", func(c *Config) { c.MessageHistoryLimit = -1 }, "message_history_limit"},
		{"missing token", func(c *Config) { c.Telegram.BotToken = "" }, "bot_token"},
		{"missing chat", func(c *Config) { c.Telegram.Chat = "" }, "telegram.chat"},
		{"bad webhook", func(c *Config) { c.Discord.WebhookURL = "discord.com/x" }, "webhook_url"},
		{"zero max events", func(c *Config) { c.Storage.MaxEvents = 0 }, "max_events"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"api without address", func(c *Config) { c.API.Enabled = true; c.API.BindAddress = "" }, "bind_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
