package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sjawhar/call-insights/internal/audio"
	"github.com/sjawhar/call-insights/internal/config"
	"github.com/sjawhar/call-insights/internal/gdrive"
	"github.com/sjawhar/call-insights/internal/llm"
	"github.com/sjawhar/call-insights/internal/metrics"
	"github.com/sjawhar/call-insights/internal/sentiment"
	"github.com/sjawhar/call-insights/internal/server"
	"github.com/sjawhar/call-insights/internal/session"
	"github.com/sjawhar/call-insights/internal/storage"
	"github.com/sjawhar/call-insights/internal/transcribe"
)

const backupInterval = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("call-insights: fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, warnings, err := config.Load(envOrDefault(config.EnvPrefix+"CONFIG", "config.yaml"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	for _, w := range warnings {
		logger.Warn("config", "warning", w)
	}
	logger.Info("call-insights: starting", "addr", cfg.ListenAddr, "stt", cfg.STT.Provider)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	var store *storage.SQLiteStore
	if cfg.DBPath != "" {
		store, err = storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("storage init: %w", err)
		}
		defer func() { _ = store.Close() }()
	} else {
		logger.Info("audit store disabled")
	}

	normalizer := audio.NewNormalizer(audio.Options{
		SampleRate:       cfg.Audio.SampleRate,
		MinFragmentBytes: cfg.Audio.MinFragmentBytes,
		MinDecodedBytes:  cfg.Audio.MinDecodedBytes,
		HeaderBytes:      cfg.Audio.HeaderBytes,
		RawPCM:           cfg.Audio.InputFormat == config.InputFormatPCM,
	}, audio.NewFFmpegDecoder(cfg.Audio.FFmpegPath, cfg.Audio.SampleRate, cfg.Audio.Filter), logger)

	provider, err := transcribe.NewProvider(transcribe.ProviderConfig{
		Name:     cfg.STT.Provider,
		APIKey:   cfg.APIKeyFor(cfg.STT.Provider),
		Model:    cfg.STT.Model,
		BaseURL:  cfg.STT.BaseURL,
		Language: cfg.STT.Language,
	})
	if err != nil {
		return fmt.Errorf("stt provider: %w", err)
	}
	invoker := transcribe.NewInvoker(provider, cfg.STT.Provider, cfg.STT.Workers, m, logger)

	classifier := sentiment.New(cfg.Sentiment.Model, func(providerName, model string) (llm.Client, error) {
		return llm.NewClient(providerName, cfg.APIKeyFor(providerName), model,
			llm.WithBaseURL(cfg.Sentiment.BaseURL),
			llm.WithMaxTokens(10),
		)
	}, m, logger)

	hub := server.NewHub(logger)

	sessionCfg := session.Config{
		SampleRate:       cfg.Audio.SampleRate,
		SilenceThreshold: cfg.Flush.SilenceThreshold,
		MinPause:         cfg.MinPauseDuration(),
		MinBuffer:        cfg.MinBufferDuration(),
		MaxBuffer:        cfg.MaxBufferDuration(),
		MinFinalBytes:    cfg.Flush.MinFinalBytes,
		CloseTimeout:     cfg.CloseTimeoutDuration(),
	}
	if cfg.Audio.HeaderCacheScope == config.HeaderScopeProcess {
		sessionCfg.SharedHeaders = audio.NewHeaderCache()
	}

	deps := session.Deps{
		Normalizer:  normalizer,
		Transcriber: invoker,
		Classifier:  classifier,
		Events:      hub,
		Metrics:     m,
		Logger:      logger,
	}
	apiDeps := server.Deps{
		Hub:         hub,
		Normalizer:  normalizer,
		Transcriber: invoker,
		Classifier:  classifier,
		Metrics:     m,
		Gatherer:    reg,
		Warnings:    warnings,
		Logger:      logger,
	}
	// Typed nil pointers must not leak into the interfaces.
	if store != nil {
		deps.Store = store
		apiDeps.Store = store
	}

	registry := session.NewRegistry(sessionCfg, deps)
	apiDeps.Registry = registry

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var syncer *gdrive.Syncer
	if cfg.GDriveFolderID != "" && store != nil {
		syncer, err = gdrive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID, logger)
		if err != nil {
			logger.Warn("gdrive backup disabled", "error", err)
		} else {
			go syncer.Run(ctx, store, backupInterval)
		}
	}

	serverCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(serverCtx, cfg.ListenAddr, server.Handler(apiDeps), 5*time.Second, logger)
	}()

	select {
	case err := <-serveErr:
		registry.StopAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("call-insights: shutting down", "active_sessions", registry.Len())
	registry.StopAll()
	hub.Close()
	stopServer()
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("http shutdown failed", "error", err)
	}

	if syncer != nil {
		backupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := syncer.Backup(backupCtx, store); err != nil {
			logger.Warn("final drive backup failed", "error", err)
		}
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func envOrDefault(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
