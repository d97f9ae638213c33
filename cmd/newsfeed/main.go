package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/samvad-news-feed/internal/app"
	"github.com/samvad-hq/samvad-news-feed/internal/config"
	"github.com/samvad-hq/samvad-news-feed/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "newsfeed start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("newsfeed starting", "config", cfg.Redacted())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feed, err := app.New(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize newsfeed", "error", err.Error())
		return err
	}

	if err := feed.Run(ctx); err != nil {
		return fmt.Errorf("newsfeed run: %w", err)
	}
	return nil
}
