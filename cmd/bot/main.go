package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/app"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/config"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/handlers"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/mediagroup"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("HEADSHOT_CONFIG"))
	if err != nil {
		panic(err)
	}
	if err := cfg.ValidateBot(); err != nil {
		panic(err)
	}

	logger := app.NewLogger(cfg.LogLevel)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown failed", "err", err)
		}
	}()

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: a.HTTPClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	handler := handlers.New(handlers.Options{
		Telegram: tg,
		Studio:   a.Studio,
		Auth:     a.Auth,
		Storage:  a.Storage,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.SweepSessions(ctx, time.Minute)

	sem := make(chan struct{}, cfg.MaxConcurrent)
	onGroupFlush := func(group mediagroup.Group) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func() {
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
			defer cancel()

			handler.HandleMediaGroup(reqCtx, group)
		}()
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce(),
		OnFlush:  onGroupFlush,
	})
	defer aggregator.Close()
	handler.SetMediaGroupAggregator(aggregator)

	logger.Info("bot started", "username", tg.Username())

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(update telegram.Update) {
				defer func() { <-sem }()

				// Generation runs the model call plus uploads and the album send.
				reqCtx, cancel := context.WithTimeout(ctx, 2*cfg.RequestTimeout())
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}(update)
		}
	}
}
