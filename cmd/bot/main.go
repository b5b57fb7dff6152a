package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"arch-render-studio/internal/album"
	"arch-render-studio/internal/config"
	"arch-render-studio/internal/gemini"
	"arch-render-studio/internal/handlers"
	"arch-render-studio/internal/httpclient"
	"arch-render-studio/internal/prompt"
	"arch-render-studio/internal/storage"
	"arch-render-studio/internal/studio"
	"arch-render-studio/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(true)
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	// generation calls are paced separately from telegram traffic
	genClient := httpclient.New(httpclient.Options{
		PreferIPv4:        cfg.PreferIPv4,
		Timeout:           cfg.HTTPTimeout,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Burst:             cfg.VariationCount,
		UserAgent:         "arch-render-studio",
	})

	gen, err := gemini.NewGenerator(ctx, gemini.BackendOptions{
		Backend:    cfg.GenerationBackend,
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		Model:      cfg.ImageModel,
		HTTPClient: genClient,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("generator init failed", "err", err)
		os.Exit(1)
	}

	store, err := storage.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	catalog, err := prompt.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		logger.Error("catalog load failed", "err", err)
		os.Exit(1)
	}

	st, err := studio.New(studio.Options{
		Generator:          gen,
		Store:              store,
		Prompts:            prompt.NewBuilder(catalog),
		Logger:             logger,
		HistoryLimit:       cfg.MaxHistoryEntries,
		VariationCount:     cfg.VariationCount,
		CompressAboveBytes: cfg.CompressAboveBytes,
	})
	if err != nil {
		logger.Error("studio init failed", "err", err)
		os.Exit(1)
	}

	handler := handlers.New(handlers.Options{
		Telegram: tg,
		Studio:   st,
		Logger:   logger,
	})

	sem := make(chan struct{}, cfg.MaxConcurrent)
	onAlbumFlush := func(al album.Album) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func() {
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()

			handler.HandleAlbum(reqCtx, al)
		}()
	}

	aggregator := album.New(album.Options{
		Debounce: cfg.AlbumDebounce,
		OnFlush:  onAlbumFlush,
	})
	defer aggregator.Close()
	handler.SetAlbumAggregator(aggregator)

	logger.Info("bot started", "username", tg.Username(), "backend", cfg.GenerationBackend)

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

			go func() {
				defer func() { <-sem }()

				reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}()
		}
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
