package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/bot"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/config"
	"github.com/vuongmanhnghia/discord-queue-engine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Format: "text"})
		fallback.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	log.Infof("Starting %s v%s", cfg.BotName, cfg.Version)
	log.Infof("Fairness mode: %s, max pending per user: %d", cfg.FairnessMode, cfg.MaxPendingPerUser)

	queueBot, err := bot.New(cfg, log)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	ctx := context.Background()
	if err := queueBot.Start(ctx); err != nil {
		log.Fatalf("Failed to start bot: %v", err)
	}

	log.Info("✅ Bot is now running. Press CTRL-C to exit.")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	log.Info("Shutting down gracefully...")
	queueBot.Stop()
	log.Info("Bot stopped successfully")
}
