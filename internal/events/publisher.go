package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/seller-scraper/internal/database"
	"github.com/maltedev/seller-scraper/internal/models"
)

type EventType string

const (
	// EventTypeSellerExtracted is published once per identifiable seller found on a product.
	EventTypeSellerExtracted EventType = "SELLER_EXTRACTED"

	aggregateSeller = "seller"
	sourceScraper   = "scraper"
)

type SellerExtractedPayload struct {
	EventID      string              `json:"event_id"`
	EventType    string              `json:"event_type"`
	Timestamp    time.Time           `json:"timestamp"`
	SellerID     string              `json:"seller_id"`
	SellerKey    string              `json:"seller_key"`
	Seller       models.SellerRecord `json:"seller"`
	FoundFields  int                 `json:"found_fields"`
	ProductASIN  string              `json:"product_asin,omitempty"`
	ProductTitle string              `json:"product_title,omitempty"`
	ProductURL   string              `json:"product_url"`
	Source       string              `json:"source"`
}

// Transactor runs fn inside a database transaction. *database.DB implements it.
type Transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

type SellerWriter interface {
	SaveResultWithTx(ctx context.Context, tx pgx.Tx, result models.SellerResult) (uuid.UUID, error)
}

// Publisher persists seller results and their SELLER_EXTRACTED event in one
// transaction, so an event exists exactly when its seller row does.
type Publisher struct {
	tx      Transactor
	outbox  OutboxWriter
	sellers SellerWriter
	stream  string
	logger  *slog.Logger
}

func NewPublisher(db *database.DB, stream string, logger *slog.Logger) *Publisher {
	return NewPublisherWith(db, database.NewOutboxRepository(db), database.NewSellerRepository(db), stream, logger)
}

func NewPublisherWith(tx Transactor, outbox OutboxWriter, sellers SellerWriter, stream string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if stream == "" {
		stream = database.DefaultStream
	}
	return &Publisher{
		tx:      tx,
		outbox:  outbox,
		sellers: sellers,
		stream:  stream,
		logger:  logger.With("component", "event_publisher"),
	}
}

// SaveSeller stores result and, when the seller could be identified, queues a
// SELLER_EXTRACTED event for it.
func (p *Publisher) SaveSeller(ctx context.Context, result models.SellerResult) error {
	var published *database.OutboxEvent

	err := p.tx.Transaction(ctx, func(tx pgx.Tx) error {
		sellerID, err := p.sellers.SaveResultWithTx(ctx, tx, result)
		if err != nil {
			return err
		}
		if sellerID == uuid.Nil {
			return nil
		}

		event, err := p.sellerExtracted(sellerID, result)
		if err != nil {
			return err
		}
		if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		published = event
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish seller: %w", err)
	}

	if published != nil {
		p.logger.Debug("event published to outbox",
			"type", published.EventType,
			"seller_id", published.AggregateID,
			"product_url", result.ProductURL,
			"outbox_id", published.ID)
	}

	return nil
}

func (p *Publisher) sellerExtracted(sellerID uuid.UUID, result models.SellerResult) (*database.OutboxEvent, error) {
	payload := SellerExtractedPayload{
		EventID:      uuid.New().String(),
		EventType:    string(EventTypeSellerExtracted),
		Timestamp:    time.Now(),
		SellerID:     sellerID.String(),
		SellerKey:    database.SellerKey(result.Seller),
		Seller:       result.Seller,
		FoundFields:  result.Seller.FoundCount(),
		ProductASIN:  result.ProductASIN,
		ProductTitle: result.ProductTitle,
		ProductURL:   result.ProductURL,
		Source:       sourceScraper,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: aggregateSeller,
		AggregateID:   payload.SellerID,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  p.stream,
	}, nil
}
