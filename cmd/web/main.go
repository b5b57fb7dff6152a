package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"arch-render-studio/internal/config"
	"arch-render-studio/internal/discovery"
	"arch-render-studio/internal/gemini"
	"arch-render-studio/internal/httpclient"
	"arch-render-studio/internal/prompt"
	"arch-render-studio/internal/storage"
	"arch-render-studio/internal/studio"
	"arch-render-studio/internal/webapi"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(false)
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("web stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := httpclient.New(httpclient.Options{
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
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	store, err := storage.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	catalog, err := prompt.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return err
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
		return err
	}

	api := webapi.New(webapi.Options{
		Studio:         st,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: cfg.RequestTimeout,
	})

	ln, err := net.Listen("tcp", cfg.WebAddr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	if cfg.MDNSEnabled {
		port := ln.Addr().(*net.TCPAddr).Port
		adv, err := discovery.Advertise(cfg.MDNSInstance, port, map[string]string{
			"backend": cfg.GenerationBackend,
			"model":   cfg.ImageModel,
			"port":    strconv.Itoa(port),
		})
		if err != nil {
			logger.Warn("mdns advertise failed", "err", err)
		} else {
			defer adv.Shutdown()
			logger.Info("mdns advertising", "instance", cfg.MDNSInstance, "port", port)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.Info("web started", "addr", ln.Addr().String(), "backend", cfg.GenerationBackend)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
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
