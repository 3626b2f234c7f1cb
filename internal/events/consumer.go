package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrMalformedMessage = errors.New("malformed stream message")

// StreamClient is the part of *redis.Client a Consumer needs.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler receives one decoded SELLER_EXTRACTED event. A returned error leaves
// the message unacknowledged so it is redelivered to the group.
type Handler func(ctx context.Context, event *SellerExtractedPayload) error

type ConsumerConfig struct {
	Stream string
	Group  string
	Name   string
	Block  time.Duration
	Count  int64
}

// Consumer reads seller events from a Redis stream as a member of a consumer group.
type Consumer struct {
	client  StreamClient
	handler Handler
	cfg     ConsumerConfig
	logger  *slog.Logger
}

func NewConsumer(client StreamClient, handler Handler, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = "stream:seller_events"
	}
	if cfg.Group == "" {
		cfg.Group = "seller-consumer-group"
	}
	if cfg.Name == "" {
		cfg.Name = "consumer-1"
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		client:  client,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With("component", "consumer", "stream", cfg.Stream, "group", cfg.Group),
	}
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("consumer started")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := c.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			if err := sleep(ctx, time.Second); err != nil {
				return err
			}
			continue
		}
		if n > 0 {
			c.logger.Debug("batch processed", "messages", n)
		}
	}
}

// poll reads one batch and returns the number of messages handled.
func (c *Consumer) poll(ctx context.Context) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	handled := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error("failed to process message", "id", msg.ID, "error", err)
				continue
			}
			if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
				c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
				continue
			}
			handled++
		}
	}
	return handled, nil
}

func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) error {
	event, err := DecodeMessage(msg)
	if err != nil {
		if errors.Is(err, ErrMalformedMessage) {
			// Poison messages are acknowledged so they do not block the group.
			c.logger.Warn("skipping malformed message", "id", msg.ID, "error", err)
			return nil
		}
		return err
	}
	if event == nil {
		return nil
	}
	return c.handler(ctx, event)
}

// DecodeMessage unwraps the relay envelope. It returns nil, nil for events of
// other types.
func DecodeMessage(msg redis.XMessage) (*SellerExtractedPayload, error) {
	eventType, _ := msg.Values["event_type"].(string)
	if eventType != string(EventTypeSellerExtracted) {
		return nil, nil
	}

	data, ok := msg.Values["data"].(string)
	if !ok || data == "" {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedMessage)
	}

	var envelope struct {
		Payload SellerExtractedPayload `json:"payload"`
	}
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if envelope.Payload.SellerKey == "" {
		return nil, fmt.Errorf("%w: missing seller key", ErrMalformedMessage)
	}

	return &envelope.Payload, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
