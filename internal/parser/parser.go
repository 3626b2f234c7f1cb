package parser

import (
	"errors"

	"github.com/maltedev/seller-scraper/internal/models"
)

var (
	ErrSellerNotFound = errors.New("seller link not found")
	ErrInvalidBaseURL = errors.New("invalid base url")
)

// SellerLink is the seller profile a product page points to.
type SellerLink struct {
	Name     string
	URL      string
	SellerID string
}

type Parser interface {
	ParseSearchResults(html string) ([]*models.Product, error)
	ParseSellerLink(html string) (*SellerLink, error)
	HasNextPage(html string) (bool, error)
}
