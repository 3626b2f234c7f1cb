package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/seller-scraper/internal/api"
	"github.com/maltedev/seller-scraper/internal/config"
	"github.com/maltedev/seller-scraper/internal/database"
	"github.com/maltedev/seller-scraper/internal/events"
	"github.com/maltedev/seller-scraper/internal/jobs"
	"github.com/maltedev/seller-scraper/internal/pipeline"
	"github.com/maltedev/seller-scraper/internal/scraper"
	"github.com/maltedev/seller-scraper/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, closer := logger.NewRotating(cfg.Logging.Level, cfg.Logging.Format, logger.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := api.Deps{}
	var sink scraper.SellerSink

	// Database connection
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database.PoolConfig())
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}

		// Transactional outbox
		sink = events.NewPublisher(db, cfg.Redis.StreamKey, logger)
		deps.Sellers = database.NewSellerRepository(db)

		if cfg.Redis.Enabled {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				logger.Error("failed to connect to Redis", "error", err)
				os.Exit(1)
			}

			relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, logger, database.RelayConfig{
				PollInterval: cfg.Redis.RelayInterval,
				BatchSize:    cfg.Redis.RelayBatchSize,
			})
			deps.Outbox = relay

			go func() {
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("relay stopped with error", "error", err)
				}
			}()
		}
	}

	pl, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize pipeline", "error", err)
		os.Exit(1)
	}
	defer pl.Close()
	deps.Extractor = pl.Engine

	runner := jobs.RunnerFunc(func(ctx context.Context, req jobs.Request, progress func(scraper.Progress)) (*scraper.Result, error) {
		return pl.Crawler(pipeline.CrawlOptions{
			MaxPages:   req.MaxPages,
			Sink:       sink,
			OnProgress: progress,
		}).Crawl(ctx, req.Keyword)
	})

	jobManager := jobs.NewManager(runner, jobs.Options{QueueSize: cfg.Server.JobQueueSize}, logger)
	go jobManager.StartWorker(ctx)
	deps.Jobs = jobManager

	handlers := api.NewHandlers(deps, logger)
	router := api.NewRouter(handlers, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logging:        true,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting",
		"addr", server.Addr,
		"database", cfg.Database.Enabled,
		"redis", cfg.Redis.Enabled)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", fmt.Errorf("listen on %s: %w", server.Addr, err))
		os.Exit(1)
	}

	logger.Info("server stopped")
}
