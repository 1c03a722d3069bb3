package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"overseerr-tg-bot/internal/botcfg"
	"overseerr-tg-bot/internal/config"
	"overseerr-tg-bot/internal/health"
	"overseerr-tg-bot/internal/notify"
	"overseerr-tg-bot/internal/overseerr"
	"overseerr-tg-bot/internal/session"
	"overseerr-tg-bot/internal/telegram"
	"overseerr-tg-bot/internal/webhook"
)

func main() {
	// A .env file is optional; deployments usually inject real env vars.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	var logLevel slog.Level
	switch cfg.Logging.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if cfg.Logging.JSONFormat {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Create root context with cancellation
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// WaitGroup for tracking active goroutines
	var wg sync.WaitGroup

	// Initialize persistent stores. BOT_MODE only seeds the very first run;
	// afterwards bot_config.json is authoritative.
	initialMode, _ := botcfg.ParseMode(cfg.Bot.Mode)
	cfgStore, err := botcfg.NewJSONStore(cfg.Bot.DataDir, initialMode, logger)
	if err != nil {
		logger.Error("failed to open bot config store", "error", err)
		os.Exit(1)
	}

	normalStore := session.NewNormalJSONStore(cfg.Bot.DataDir)
	sharedStore := session.NewSharedJSONStore(cfg.Bot.DataDir)
	selectionStore := session.NewSelectionJSONStore(cfg.Bot.DataDir)

	// Initialize Overseerr client
	client := overseerr.NewClient(cfg.Overseerr, logger)

	sessions := session.NewManager(cfgStore, normalStore, sharedStore, selectionStore, client, logger)

	// Initialize Telegram bot
	bot, err := telegram.NewBot(cfg.Telegram, logger)
	if err != nil {
		logger.Error("failed to create telegram bot", "error", err)
		os.Exit(1)
	}

	// The coordinator sends through the bot; the handler needs the
	// coordinator, so the handler is attached after both exist.
	coordinator := notify.NewCoordinator(cfgStore, client, bot, logger)
	bot.SetHandler(telegram.NewHandler(
		bot.API(), cfgStore, sessions, client, coordinator, cfg.Bot.Password, logger,
	))

	// Start bot in goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bot.Run(rootCtx); err != nil && err != context.Canceled {
			logger.Error("bot error", "error", err)
		}
	}()

	// Start webhook server for Overseerr notifications
	if cfg.Webhook.Enabled {
		server := webhook.NewServer(cfg.Webhook, coordinator, client, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(rootCtx); err != nil && err != context.Canceled {
				logger.Error("webhook server error", "error", err)
			}
		}()
	}

	// Start health file writer
	healthWriter := health.NewWriter(cfg.Health, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := healthWriter.Run(rootCtx); err != nil && err != context.Canceled {
			logger.Error("health writer error", "error", err)
		}
	}()

	logger.Info("bot started",
		"mode", cfgStore.Get().Mode,
		"overseerr_url", cfg.Overseerr.APIURL,
		"webhook_enabled", cfg.Webhook.Enabled,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig)

	// Cancel root context to signal all goroutines
	rootCancel()

	// Wait for graceful shutdown with timeout
	shutdownTimeout := 30 * time.Second
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("graceful shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timeout exceeded, forcing exit")
	}
}
