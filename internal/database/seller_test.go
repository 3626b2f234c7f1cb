package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/seller-scraper/internal/models"
)

func TestSellerKey(t *testing.T) {
	tests := []struct {
		name   string
		record models.SellerRecord
		want   string
	}{
		{
			name:   "seller id from link",
			record: models.SellerRecord{SellerURL: "https://www.amazon.co.jp/sp?ie=UTF8&seller=A1B2C3&asin=B0X"},
			want:   "seller:A1B2C3",
		},
		{
			name:   "link without seller id",
			record: models.SellerRecord{SellerURL: "https://www.amazon.co.jp/shops/acme"},
			want:   "url:https://www.amazon.co.jp/shops/acme",
		},
		{
			name:   "name only",
			record: models.SellerRecord{SellerName: " ACME Store "},
			want:   "name:acme store",
		},
		{
			name:   "unknown seller placeholder",
			record: models.SellerRecord{SellerName: models.UnknownSeller},
			want:   "",
		},
		{
			name:   "sponsored placeholder",
			record: models.SellerRecord{SellerName: models.SponsoredSeller},
			want:   "",
		},
		{
			name: "empty",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SellerKey(tt.record))
		})
	}
}

func TestSellerRepository_SaveResultWithTx(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	repo := NewSellerRepository(db)
	product := models.NewProduct("B0TEST0001", "https://www.amazon.co.jp/dp/B0TEST0001", "テスト商品")

	first := models.NewSellerResult(models.SellerRecord{
		SellerName: "ACME",
		SellerURL:  "https://www.amazon.co.jp/sp?seller=A1",
		Phone:      "03-1234-5678",
	}, product)

	var firstID uuid.UUID
	require.NoError(t, db.Transaction(ctx, func(tx pgx.Tx) (err error) {
		firstID, err = repo.SaveResultWithTx(ctx, tx, first)
		return err
	}))
	assert.NotEqual(t, uuid.Nil, firstID)

	second := models.NewSellerResult(models.SellerRecord{
		SellerURL: "https://www.amazon.co.jp/sp?seller=A1",
		Email:     "info@acme.co.jp",
	}, product)

	var secondID uuid.UUID
	require.NoError(t, db.Transaction(ctx, func(tx pgx.Tx) (err error) {
		secondID, err = repo.SaveResultWithTx(ctx, tx, second)
		return err
	}))
	assert.Equal(t, firstID, secondID)

	sellers, err := repo.ListSellers(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, sellers, 1)

	got := sellers[0]
	assert.Equal(t, "seller:A1", got.Key)
	assert.Equal(t, "ACME", got.Record.SellerName)
	assert.Equal(t, "03-1234-5678", got.Record.Phone)
	assert.Equal(t, "info@acme.co.jp", got.Record.Email)
	assert.Equal(t, 1, got.Products)
}

func TestSellerRepository_SaveResultWithoutSeller(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	repo := NewSellerRepository(db)
	product := models.NewProduct("B0TEST0002", "https://www.amazon.co.jp/dp/B0TEST0002", "商品")
	result := models.NewSellerResult(models.SellerRecord{SellerName: models.UnknownSeller}, product)

	var id uuid.UUID
	require.NoError(t, db.Transaction(ctx, func(tx pgx.Tx) (err error) {
		id, err = repo.SaveResultWithTx(ctx, tx, result)
		return err
	}))
	assert.Equal(t, uuid.Nil, id)

	var count int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM products").Scan(&count))
	assert.Equal(t, 1, count)
}
