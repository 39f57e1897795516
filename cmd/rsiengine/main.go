package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"rsi-engine/config"
	"rsi-engine/internal/logger"
	"rsi-engine/internal/rsiengine"
)

func main() {
	config.LoadDotenv()

	cfg := rsiengine.LoadConfig()
	log := logger.Init("rsiengine", logger.ParseLevel(cfg.LogLevel))
	log.Info("config loaded",
		"rsi_period", cfg.RSIPeriod, "max_history", cfg.MaxHistory,
		"publish_timeout", cfg.PublishTimeout.String(), "journal", cfg.JournalPath != "")

	svc, err := rsiengine.New(cfg, log)
	if err != nil {
		log.Error("init failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("signal received", "signal", sig.String())
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}
