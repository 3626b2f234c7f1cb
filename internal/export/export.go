package export

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/maltedev/seller-scraper/internal/models"
)

const (
	ProductSheet = "产品信息"
	SellerSheet  = "卖家信息"

	timeLayout = "2006-01-02T15:04:05"
)

var unsafeFileChars = regexp.MustCompile(`[\\/:*?"<>|\s]+`)

// Column is one exported attribute with its localized header.
type Column[T any] struct {
	Header string
	Value  func(T) string
}

var ProductColumns = []Column[*models.Product]{
	{"ASIN编号", func(p *models.Product) string { return p.ASIN }},
	{"产品标题", func(p *models.Product) string { return p.Title }},
	{"价格", func(p *models.Product) string { return p.Price }},
	{"评分", func(p *models.Product) string { return p.Rating }},
	{"评价数量", func(p *models.Product) string { return p.ReviewCount }},
	{"图片链接", func(p *models.Product) string { return p.ImageURL }},
	{"产品链接", func(p *models.Product) string { return p.URL }},
	{"提取时间", func(p *models.Product) string { return formatTime(p.ExtractedAt) }},
}

var SellerColumns = []Column[models.SellerResult]{
	{"卖家名称", func(s models.SellerResult) string { return s.Seller.SellerName }},
	{"卖家链接", func(s models.SellerResult) string { return s.Seller.SellerURL }},
	{"公司名称", func(s models.SellerResult) string { return s.Seller.BusinessName }},
	{"电话号码", func(s models.SellerResult) string { return s.Seller.Phone }},
	{"地址", func(s models.SellerResult) string { return s.Seller.Address }},
	{"代表人姓名", func(s models.SellerResult) string { return s.Seller.Representative }},
	{"店铺名称", func(s models.SellerResult) string { return s.Seller.StoreName }},
	{"电子邮箱", func(s models.SellerResult) string { return s.Seller.Email }},
	{"传真号码", func(s models.SellerResult) string { return s.Seller.Fax }},
	{"关联产品标题", func(s models.SellerResult) string { return s.ProductTitle }},
	{"关联产品链接", func(s models.SellerResult) string { return s.ProductURL }},
	{"关联产品ASIN", func(s models.SellerResult) string { return s.ProductASIN }},
	{"提取时间", func(s models.SellerResult) string { return formatTime(s.ExtractedAt) }},
}

func headers[T any](cols []Column[T]) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Header
	}
	return out
}

func row[T any](cols []Column[T], v T) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Value(v)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

// Writer persists a crawl snapshot.
type Writer interface {
	Write(products []*models.Product, sellers []models.SellerResult) error
}

// Files names the outputs of one crawl: the workbook plus the two CSVs
// written next to it on the final save.
type Files struct {
	Workbook    string
	ProductsCSV string
	SellersCSV  string
}

// FilesFor derives amazon_search_<keyword>_<timestamp>.xlsx and its CSVs.
func FilesFor(dir, keyword string, started time.Time) Files {
	name := unsafeFileChars.ReplaceAllString(strings.TrimSpace(keyword), "_")
	if name == "" {
		name = "search"
	}
	base := filepath.Join(dir, fmt.Sprintf("amazon_search_%s_%s", name, started.Format("20060102_150405")))

	return Files{
		Workbook:    base + ".xlsx",
		ProductsCSV: base + "_products.csv",
		SellersCSV:  base + "_sellers.csv",
	}
}

// Exporter writes periodic workbook snapshots during a crawl and the
// workbook plus CSVs at the end.
type Exporter struct {
	files Files
}

func NewExporter(files Files) (*Exporter, error) {
	if err := os.MkdirAll(filepath.Dir(files.Workbook), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Exporter{files: files}, nil
}

func (e *Exporter) Files() Files {
	return e.files
}

// Snapshot rewrites the workbook.
func (e *Exporter) Snapshot(products []*models.Product, sellers []models.SellerResult) error {
	if len(products) == 0 {
		return nil
	}
	return NewXLSXWriter(e.files.Workbook).Write(products, sellers)
}

// Final rewrites the workbook and writes the CSVs. The seller CSV is only
// written when sellers were found.
func (e *Exporter) Final(products []*models.Product, sellers []models.SellerResult) error {
	if len(products) == 0 {
		return nil
	}
	if err := e.Snapshot(products, sellers); err != nil {
		return err
	}
	if err := WriteProductsCSV(e.files.ProductsCSV, products); err != nil {
		return err
	}
	if len(sellers) > 0 {
		if err := WriteSellersCSV(e.files.SellersCSV, sellers); err != nil {
			return err
		}
	}
	return nil
}
