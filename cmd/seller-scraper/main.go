package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/seller-scraper/internal/config"
	"github.com/maltedev/seller-scraper/internal/database"
	"github.com/maltedev/seller-scraper/internal/events"
	"github.com/maltedev/seller-scraper/internal/export"
	"github.com/maltedev/seller-scraper/internal/pipeline"
	"github.com/maltedev/seller-scraper/internal/scraper"
	"github.com/maltedev/seller-scraper/internal/storage"
	"github.com/maltedev/seller-scraper/pkg/logger"
)

func main() {
	var (
		keywords  = flag.String("keywords", "", "Comma-separated search keywords")
		maxPages  = flag.Int("pages", 0, "Maximum result pages per keyword (0 = until exhausted)")
		outputDir = flag.String("output", "", "Output directory (overrides SCRAPER_OUTPUT_DIR)")
		fetchMode = flag.String("mode", "", "Fetch mode: http or browser (overrides SCRAPER_FETCH_MODE)")
		headless  = flag.Bool("headless", true, "Run browser in headless mode")
		deep      = flag.Bool("deep", true, "Use the full extraction strategy set")
	)
	flag.Parse()

	kws := splitKeywords(*keywords, flag.Args())
	if len(kws) == 0 {
		fmt.Println("Please provide at least one keyword with -keywords")
		flag.Usage()
		os.Exit(1)
	}

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *outputDir != "" {
		cfg.Scraper.OutputDir = *outputDir
	}
	if *fetchMode != "" {
		cfg.Scraper.FetchMode = *fetchMode
	}
	cfg.Browser.Headless = *headless && cfg.Browser.Headless
	cfg.Scraper.DeepAnalysis = *deep && cfg.Scraper.DeepAnalysis
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, kws, *maxPages, logger); err != nil {
		logger.Error("Scraper failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, keywords []string, maxPages int, logger *slog.Logger) error {
	pl, err := pipeline.New(cfg, logger)
	if err != nil {
		return err
	}
	defer pl.Close()

	var sink scraper.SellerSink
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database.PoolConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		sink = events.NewPublisher(db, cfg.Redis.StreamKey, logger)

		if cfg.Redis.Enabled {
			stopRelay, err := startRelay(ctx, cfg, db, logger)
			if err != nil {
				return err
			}
			defer stopRelay()
		}
	}

	var progress *storage.LinkStorage
	if cfg.Scraper.ProgressFile != "" {
		progress, err = storage.NewLinkStorage(cfg.Scraper.ProgressFile)
		if err != nil {
			return fmt.Errorf("failed to open progress file: %w", err)
		}
		logger.Info("Resuming from progress file", "file", cfg.Scraper.ProgressFile, "stats", progress.GetStats())
	}

	for _, kw := range keywords {
		if ctx.Err() != nil {
			break
		}

		exporter, err := export.NewExporter(export.FilesFor(cfg.Scraper.OutputDir, kw, time.Now()))
		if err != nil {
			return err
		}

		crawler := pl.Crawler(pipeline.CrawlOptions{
			MaxPages: maxPages,
			Saver:    exporter,
			Sink:     sink,
			Progress: progress,
			OnProgress: func(p scraper.Progress) {
				logger.Info("Page done",
					"keyword", p.Keyword,
					"page", p.Page,
					"products", p.Products,
					"sellers", p.Sellers,
					"new", p.NewFound)
			},
		})

		result, err := crawler.Crawl(ctx, kw)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Crawl failed", "keyword", kw, "error", err)
			continue
		}
		if result == nil {
			continue
		}

		files := exporter.Files()
		logger.Info("Crawl finished",
			"keyword", kw,
			"pages", result.Pages,
			"products", len(result.Products),
			"sellers", len(result.Sellers),
			"with_contact", len(result.SellersWithContact()),
			"failed", result.Failed,
			"stopped", result.Stopped,
			"workbook", files.Workbook,
			"sellers_csv", files.SellersCSV)
	}

	stats := pl.Session.Stats()
	logger.Info("Session summary",
		"requests", stats.Requests,
		"blocked", stats.Blocked,
		"unavailable", stats.Unavailable,
		"resets", stats.Resets)

	return nil
}

// startRelay forwards outbox events to Redis until the returned func is called.
func startRelay(ctx context.Context, cfg *config.Config, db *database.DB, logger *slog.Logger) (func(), error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	relay := database.NewRelay(database.NewOutboxRepository(db), client, logger, database.RelayConfig{
		PollInterval: cfg.Redis.RelayInterval,
		BatchSize:    cfg.Redis.RelayBatchSize,
	})

	relayCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := relay.Start(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Relay stopped with error", "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
		client.Close()
	}, nil
}

func splitKeywords(flagValue string, args []string) []string {
	var out []string
	for _, part := range append(strings.Split(flagValue, ","), args...) {
		if kw := strings.TrimSpace(part); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
