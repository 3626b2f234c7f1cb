package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/seller-scraper/internal/config"
	"github.com/maltedev/seller-scraper/internal/events"
	"github.com/maltedev/seller-scraper/pkg/logger"
)

func main() {
	var (
		group  = flag.String("group", "seller-consumer-group", "Consumer group name")
		name   = flag.String("name", "consumer-1", "Consumer name within the group")
		output = flag.String("output", "", "Append events as JSON lines to this file (default: stdout)")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	var out io.Writer = os.Stdout
	if *output != "" {
		f, err := os.OpenFile(*output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("Failed to open output: %v", err)
		}
		defer f.Close()
		out = f
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	var mu sync.Mutex
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	handler := func(ctx context.Context, event *events.SellerExtractedPayload) error {
		logger.Info("Seller extracted",
			"seller_key", event.SellerKey,
			"seller", event.Seller.SellerName,
			"found_fields", event.FoundFields,
			"product", event.ProductURL)

		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(event)
	}

	consumer := events.NewConsumer(rdb, handler, events.ConsumerConfig{
		Stream: cfg.Redis.StreamKey,
		Group:  *group,
		Name:   *name,
	}, logger)

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Consumer error: %v", err)
	}
	logger.Info("Consumer stopped")
}
