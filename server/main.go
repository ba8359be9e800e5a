package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"example.com/detective_engine/pkg/audit"
	"example.com/detective_engine/pkg/config"
	"example.com/detective_engine/pkg/gemini"
	"example.com/detective_engine/pkg/metrics"
)

const serviceName = "detective-engine"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("addr", cfg.Server.Addr),
		slog.String("analysis_model", cfg.Analysis.Model),
		slog.Bool("search", cfg.Analysis.Search),
		slog.String("chat_model", cfg.Chat.Model),
		slog.String("live_model", cfg.Live.Model),
		slog.Int("suspects", len(cfg.Suspects)),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)

	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.Server.BaseURL,
		Timeout: cfg.Analysis.Timeout,
	})
	if err != nil {
		logger.Error("Failed to create Gemini client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	livePrompt := cfg.Live.Prompt
	if livePrompt == "" {
		livePrompt = audit.DefaultLivePrompt
	}

	srv := &server{
		ctx:     ctx,
		cfg:     cfg,
		logger:  logger,
		metrics: appMetrics,
		analyzer: audit.NewAnalyzer(client, audit.Config{
			Model:         cfg.Analysis.Model,
			SystemPrompt:  cfg.Analysis.Prompt,
			Search:        cfg.Analysis.Search,
			EnforceSewage: cfg.Analysis.EnforceSewage,
			Logger:        logger,
			Metrics:       appMetrics,
		}),
		chat: client,
		dialer: client.LiveDialer(gemini.LiveConfig{
			Model:             cfg.Live.Model,
			Voice:             cfg.Live.Voice,
			SystemInstruction: livePrompt,
			Logger:            logger,
		}),
		sessions: NewSessionManager(),
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.routes(registry),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		logger.Error("HTTP server failed", slog.String("error", err.Error()))
	}

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// hijacked signaling sockets are not covered by Shutdown
	srv.sessions.CloseAll()

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
