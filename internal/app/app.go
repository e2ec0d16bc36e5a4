// Package app wires the headshot services shared by the web and bot
// front ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/auth"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/config"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/events"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/gemini"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/generation"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/history"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/httpclient"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/progress"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/records"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/storage"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/studio"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/transform"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/upload"
)

const userAgent = "headshot-studio/1.0"

type App struct {
	HTTPClient *http.Client
	Storage    *storage.Local
	Records    *records.SQLite
	Bus        *events.Bus
	Auth       *auth.Local
	Studio     *studio.Service

	logger      *slog.Logger
	unsubscribe func()
}

// New builds every service from cfg. Close releases what it opened.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger}

	a.HTTPClient = httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout(),
		UserAgent:  userAgent,
	})

	local, err := storage.NewLocal(storage.LocalOptions{
		Root:    cfg.StorageRoot(),
		BaseURL: cfg.FilesURL(),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.Storage = local

	a.Records, err = records.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}

	a.Bus, err = events.Open(cfg.NATSURL)
	if err != nil {
		_ = a.Records.Close()
		return nil, fmt.Errorf("open event bus: %w", err)
	}

	gem := gemini.New(gemini.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		Model:      cfg.GeminiModel,
		HTTPClient: a.HTTPClient,
		Logger:     logger,
	})

	transformer := transform.New(transform.Options{
		Editor:      gem,
		Storage:     local,
		Concurrency: cfg.MaxConcurrent,
		Logger:      logger,
	})

	generator := generation.New(generation.Options{
		Records:     a.Records,
		Transformer: transformer,
		Events:      events.NewNATS(events.NATSOptions{Conn: a.Bus.Conn, Logger: logger}),
		Progress: progress.Options{
			Step:     cfg.ProgressStep,
			Interval: cfg.ProgressInterval(),
			Cap:      cfg.ProgressCap,
		},
		Variants: cfg.Variants,
		Timeout:  cfg.RequestTimeout(),
		Logger:   logger,
	})

	a.Auth = auth.NewLocal(auth.LocalOptions{
		IdleTimeout: cfg.SessionIdle(),
		Logger:      logger,
	})

	a.Studio = studio.New(studio.Options{
		Uploads: upload.New(upload.Options{
			Storage:     local,
			Concurrency: cfg.MaxConcurrent,
			Logger:      logger,
		}),
		Generator: generator,
		History: history.New(history.Options{
			Records: a.Records,
			Limit:   cfg.HistoryLimit,
			Logger:  logger,
		}),
		Logger: logger,
	})
	a.unsubscribe = a.Studio.Watch(a.Auth)

	return a, nil
}

// SweepSessions expires idle sessions every interval until ctx is done.
func (a *App) SweepSessions(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.Auth.Sweep(); n > 0 {
				a.logger.Info("sessions expired", "count", n)
			}
		}
	}
}

func (a *App) Close() error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return errors.Join(a.Bus.Close(), a.Records.Close())
}

func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
}
