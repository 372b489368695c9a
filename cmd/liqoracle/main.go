package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rewired-gh/liqoracle/internal/api"
	"github.com/rewired-gh/liqoracle/internal/config"
	"github.com/rewired-gh/liqoracle/internal/discord"
	"github.com/rewired-gh/liqoracle/internal/ingest"
	"github.com/rewired-gh/liqoracle/internal/logger"
	"github.com/rewired-gh/liqoracle/internal/monitor"
	"github.com/rewired-gh/liqoracle/internal/storage"
	"github.com/rewired-gh/liqoracle/internal/telegram"
)

var configPath = flag.String("config", "", "Path to optional configuration file (environment always applies)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAgeDays); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("Configuration loaded")

	if err := run(cfg); err != nil {
		logger.Fatal("%v", err)
	}
}

// run owns every resource opened after configuration, so deferred cleanup
// executes on all exit paths.
func run(cfg *config.Config) error {

	store, err := storage.New(cfg.Storage.MaxEvents, cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	var notifier monitor.Notifier
	if cfg.Discord.WebhookURL != "" {
		notifier = discord.NewClient(
			cfg.Discord.WebhookURL,
			time.Duration(cfg.Discord.TimeoutSeconds)*time.Second,
			cfg.Discord.MaxRetries,
			cfg.Discord.RetryDelayBase,
			cfg.Discord.RatePerSecond,
		)
		logger.Info("Discord notifications enabled")
	} else {
		logger.Warn("DISCORD_WEBHOOK_URL not set, alerts will only be logged")
	}

	mon := monitor.New(store, notifier, cfg.MonitorConfig())
	pipeline := ingest.NewPipeline(mon, notifier, cfg.SingleEventNotificationThreshold)

	telegramClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.Chat, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram client: %w", err)
	}
	telegramClient.SetStatusProvider(mon.Snapshot)
	logger.Info("Telegram client initialized, watching %s", cfg.Telegram.Chat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Background workers use the store; they must finish before it closes.
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	replayed := pipeline.WarmStart(ctx, telegramClient, cfg.MessageHistoryLimit)
	logger.Info("Warm start replayed %d messages", replayed)

	logger.Info("Starting monitoring loop (interval: %v, window: %ds, threshold: %.0f USD/sec, acceleration: x%.1f)",
		cfg.MonitoringInterval(),
		cfg.AnalysisWindowSeconds,
		cfg.BaseThresholdUSDPerSec,
		cfg.AccelerationThreshold,
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.Run(ctx, cfg.MonitoringInterval())
	}()

	if cfg.API.Enabled {
		server := api.NewServer(api.Config{
			BindAddress: cfg.API.BindAddress,
			CORSOrigins: cfg.API.CORSOrigins,
		}, store, mon.Snapshot)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(ctx); err != nil {
				logger.Error("API server failed: %v", err)
			}
		}()
	}

	logger.Info("Listening for liquidation messages")
	if err := telegramClient.Listen(ctx, func(msg ingest.Message) {
		pipeline.HandleLogged(ctx, msg)
	}); err != nil {
		logger.Error("Listener stopped: %v", err)
	}

	pipeline.Wait()
	logger.Info("Service stopped")
	return nil
}
