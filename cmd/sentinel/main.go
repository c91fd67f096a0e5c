// ============================================================================
// cmd/sentinel/main.go - Pool Sentinel Service
// ============================================================================
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-pool-sentinel/internal/archive"
	"solana-pool-sentinel/internal/cache"
	"solana-pool-sentinel/internal/config"
	"solana-pool-sentinel/internal/dispatch"
	"solana-pool-sentinel/internal/enrich"
	"solana-pool-sentinel/internal/models"
	"solana-pool-sentinel/internal/notify"
	"solana-pool-sentinel/internal/ratelimit"
	"solana-pool-sentinel/internal/rpc"
	"solana-pool-sentinel/internal/rugcheck"
	"solana-pool-sentinel/internal/server"
	"solana-pool-sentinel/internal/stream"
	"solana-pool-sentinel/internal/telemetry"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	if cfg.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	// workCtx covers in-flight pipeline work; streamCtx only the event
	// stream, so shutdown can stop intake while the queue drains.
	workCtx, workCancel := context.WithCancel(context.Background())
	defer workCancel()
	streamCtx, streamCancel := context.WithCancel(workCtx)
	defer streamCancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	collector := telemetry.NewCollector()

	// Redis backs the report cache and the recent-alerts view; without
	// it everything degrades to in-process memory.
	var reportCache cache.ReportCache
	var recorder dispatch.AlertRecorder
	var alerts server.AlertsSource
	if cfg.RedisAddr != "" {
		rclient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rclient.Ping(workCtx).Err(); err != nil {
			logger.WithError(err).Fatal("failed to connect to Redis")
		}
		rcache, err := cache.NewRedisCache(rclient, cfg.ReportCacheTTL)
		if err != nil {
			logger.WithError(err).Fatal("failed to create redis cache")
		}
		reportCache, recorder, alerts = rcache, rcache, rcache
		logger.WithField("addr", cfg.RedisAddr).Info("using redis cache")
	} else {
		mem := cache.NewMemoryCache(cfg.ReportCacheTTL)
		reportCache, recorder, alerts = mem, mem, mem
		logger.Info("no REDIS_ADDR configured, using in-memory cache")
	}

	// ClickHouse archiving is optional. A missing archive never blocks
	// detection.
	var archiver dispatch.AlertArchiver
	if cfg.ClickHouseAddr != "" {
		store, err := archive.NewStore(archive.Config{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Logger:   logger,
		})
		if err != nil {
			logger.WithError(err).Warn("alert archive unavailable, continuing without it")
		} else {
			archiver = store
			defer store.Close()
		}
	}

	rpcClient := rpc.NewClient(rpc.ClientConfig{
		BaseURL:      cfg.SolanaRPCURL,
		Timeout:      cfg.HTTPTimeout,
		MaxRetries:   3,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
	})
	enricher := enrich.New(enrich.Config{
		Client:      rpcClient,
		MaxAttempts: cfg.EnrichMaxAttempts,
		RetryDelay:  cfg.RetryBackoff,
		Logger:      logger,
	})

	analyzer := rugcheck.NewClient(rugcheck.Config{
		BaseURL:      cfg.RugcheckBaseURL,
		APIKey:       cfg.RugcheckAPIKey,
		Timeout:      cfg.HTTPTimeout,
		Limiter:      ratelimit.New("rugcheck", cfg.RugcheckRate, cfg.RugcheckWindow),
		Cache:        reportCache,
		MaxAttempts:  cfg.RugcheckMaxAttempts,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
		Collector:    collector,
	})

	notifier := notify.New(notify.Config{
		Sender:          notify.NewTelegramClient("", cfg.TelegramBotToken, cfg.HTTPTimeout),
		ChatID:          cfg.TelegramChatID,
		Limiter:         ratelimit.New("telegram", cfg.TelegramRate, cfg.TelegramWindow),
		MaxAttempts:     cfg.NotifyMaxAttempts,
		RetryBackoff:    cfg.RetryBackoff,
		SendHeaderPhoto: cfg.SendHeaderPhoto,
		Logger:          logger,
		Collector:       collector,
	})

	dispatcher := dispatch.New(dispatch.Config{
		Workers:       cfg.MaxConcurrentPipelines,
		QueueCapacity: cfg.QueueCapacity,
		Enricher:      enricher,
		Analyzer:      analyzer,
		Notifier:      notifier,
		Recorder:      recorder,
		Archiver:      archiver,
		Logger:        logger,
		Collector:     collector,
	})
	dispatcher.Start(workCtx)

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: &server.Handlers{
			Collector: collector,
			Alerts:    alerts,
			Logger:    logger,
		},
		Config: server.ServerConfig{Addr: cfg.ServerAddr},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}
	go func() {
		logger.WithField("addr", cfg.ServerAddr).Info("observability api starting")
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			logger.WithError(err).Error("observability api failed")
		}
	}()

	statsDone := make(chan struct{})
	go collector.LogPeriodically(logger, time.Minute, statsDone)

	go func() {
		<-sigCh
		logger.Info("shutdown signal received, stopping intake")
		streamCancel()
	}()

	notifier.AnnounceStartup(workCtx)

	streamClient := stream.NewClient(stream.Config{
		WSBaseURL: cfg.HeliusWSURL,
		APIKey:    cfg.HeliusAPIKey,
		ProgramID: cfg.RaydiumProgramID,
		Logger:    logger,
		Collector: collector,
	})

	logger.Info("pool sentinel running")
	runErr := streamClient.Run(streamCtx, func(event models.PoolCreationEvent) {
		if err := dispatcher.Submit(workCtx, event); err != nil {
			logger.WithError(err).WithField("signature", event.Signature).Warn("event not admitted")
		}
	})

	// Intake is closed; drain the queue, then cut off stragglers.
	logger.Info("draining pipeline queue")
	dispatcher.Stop()
	if !dispatcher.Wait(cfg.ShutdownTimeout) {
		logger.Warn("drain timed out, aborting in-flight pipelines")
		workCancel()
		dispatcher.Wait(5 * time.Second)
	}

	close(statsDone)
	collector.Flush(logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = srv.WaitClosed(shutdownCtx)

	if errors.Is(runErr, stream.ErrAuthRejected) {
		logger.WithError(runErr).Fatal("event stream rejected credentials")
	}
	logger.Info("shutdown complete")
}
