package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/seller-scraper/internal/models"
)

// StoredSeller is a persisted seller with the number of products it was seen on.
type StoredSeller struct {
	ID        uuid.UUID           `json:"id"`
	Key       string              `json:"key"`
	Record    models.SellerRecord `json:"seller"`
	Products  int                 `json:"products"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type SellerRepository struct {
	db *DB
}

func NewSellerRepository(db *DB) *SellerRepository {
	return &SellerRepository{db: db}
}

// SellerKey identifies a seller across products: the marketplace seller id
// when the link carries one, then the link itself, then the display name.
// Placeholder names yield "" since they do not identify anyone.
func SellerKey(rec models.SellerRecord) string {
	if rec.SellerURL != "" {
		if u, err := url.Parse(rec.SellerURL); err == nil {
			if id := u.Query().Get("seller"); id != "" {
				return "seller:" + id
			}
		}
		return "url:" + rec.SellerURL
	}

	name := strings.TrimSpace(rec.SellerName)
	if name == "" || name == models.UnknownSeller || name == models.SponsoredSeller {
		return ""
	}
	return "name:" + strings.ToLower(name)
}

// SaveResultWithTx upserts the product and, when the seller is identifiable,
// the seller and its product link. It returns the seller id or uuid.Nil.
func (r *SellerRepository) SaveResultWithTx(ctx context.Context, tx pgx.Tx, result models.SellerResult) (uuid.UUID, error) {
	if result.ProductURL == "" {
		return uuid.Nil, fmt.Errorf("seller result has no product url")
	}

	extractedAt := result.ExtractedAt
	if extractedAt.IsZero() {
		extractedAt = time.Now()
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO products (url, asin, title, extracted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO UPDATE SET
			asin = COALESCE(NULLIF(EXCLUDED.asin, ''), products.asin),
			title = COALESCE(NULLIF(EXCLUDED.title, ''), products.title),
			updated_at = NOW()`,
		result.ProductURL, result.ProductASIN, result.ProductTitle, extractedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert product: %w", err)
	}

	key := SellerKey(result.Seller)
	if key == "" {
		return uuid.Nil, nil
	}

	id, err := upsertSeller(ctx, tx, key, result.Seller)
	if err != nil {
		return uuid.Nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO seller_products (seller_id, product_url, extracted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (seller_id, product_url) DO UPDATE SET extracted_at = EXCLUDED.extracted_at`,
		id, result.ProductURL, extractedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to link seller product: %w", err)
	}

	return id, nil
}

// UpsertProduct stores a search listing.
func (r *SellerRepository) UpsertProduct(ctx context.Context, p *models.Product) error {
	extractedAt := p.ExtractedAt
	if extractedAt.IsZero() {
		extractedAt = time.Now()
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO products (url, asin, title, price, rating, review_count, image_url, extracted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (url) DO UPDATE SET
			asin = EXCLUDED.asin,
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			rating = EXCLUDED.rating,
			review_count = EXCLUDED.review_count,
			image_url = EXCLUDED.image_url,
			updated_at = NOW()`,
		p.URL, p.ASIN, p.Title, p.Price, p.Rating, p.ReviewCount, p.ImageURL, extractedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

// upsertSeller merges rec into the stored seller. Fields already known are
// kept when the new record lacks them.
func upsertSeller(ctx context.Context, tx pgx.Tx, key string, rec models.SellerRecord) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `
		INSERT INTO sellers (
			id, seller_key, seller_name, seller_url,
			business_name, phone, address, representative,
			store_name, email, fax
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (seller_key) DO UPDATE SET
			seller_name = COALESCE(NULLIF(EXCLUDED.seller_name, ''), sellers.seller_name),
			seller_url = COALESCE(NULLIF(EXCLUDED.seller_url, ''), sellers.seller_url),
			business_name = COALESCE(NULLIF(EXCLUDED.business_name, ''), sellers.business_name),
			phone = COALESCE(NULLIF(EXCLUDED.phone, ''), sellers.phone),
			address = COALESCE(NULLIF(EXCLUDED.address, ''), sellers.address),
			representative = COALESCE(NULLIF(EXCLUDED.representative, ''), sellers.representative),
			store_name = COALESCE(NULLIF(EXCLUDED.store_name, ''), sellers.store_name),
			email = COALESCE(NULLIF(EXCLUDED.email, ''), sellers.email),
			fax = COALESCE(NULLIF(EXCLUDED.fax, ''), sellers.fax),
			updated_at = NOW()
		RETURNING id`,
		uuid.New(), key, rec.SellerName, rec.SellerURL,
		rec.BusinessName, rec.Phone, rec.Address, rec.Representative,
		rec.StoreName, rec.Email, rec.Fax,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert seller: %w", err)
	}
	return id, nil
}

// ListSellers pages through stored sellers, most recently updated first.
func (r *SellerRepository) ListSellers(ctx context.Context, limit, offset int) ([]StoredSeller, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT
			s.id, s.seller_key, s.seller_name, s.seller_url,
			s.business_name, s.phone, s.address, s.representative,
			s.store_name, s.email, s.fax, s.updated_at,
			(SELECT COUNT(*) FROM seller_products sp WHERE sp.seller_id = s.id)
		FROM sellers s
		ORDER BY s.updated_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sellers: %w", err)
	}
	defer rows.Close()

	var sellers []StoredSeller
	for rows.Next() {
		var s StoredSeller
		rec := &s.Record
		if err := rows.Scan(
			&s.ID, &s.Key, &rec.SellerName, &rec.SellerURL,
			&rec.BusinessName, &rec.Phone, &rec.Address, &rec.Representative,
			&rec.StoreName, &rec.Email, &rec.Fax, &s.UpdatedAt,
			&s.Products,
		); err != nil {
			return nil, fmt.Errorf("failed to scan seller: %w", err)
		}
		sellers = append(sellers, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return sellers, nil
}
