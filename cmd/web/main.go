package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/app"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/config"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/web"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("HEADSHOT_CONFIG"))
	if err != nil {
		panic(err)
	}
	if err := cfg.ValidateWeb(); err != nil {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.SweepSessions(ctx, time.Minute)

	api := web.New(web.Options{
		Studio: a.Studio,
		Auth:   a.Auth,
		Files:  a.Storage.Handler(),
		Logger: logger,
	})

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "err", err)
		}
	}()

	logger.Info("web started", "addr", cfg.WebAddr, "files", cfg.FilesURL())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
