package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/maltedev/seller-scraper/internal/models"
)

// utf8BOM lets spreadsheet applications detect the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func WriteProductsCSV(path string, products []*models.Product) error {
	return writeCSVFile(path, func(w io.Writer) error {
		return encodeCSV(w, ProductColumns, products)
	})
}

func WriteSellersCSV(path string, sellers []models.SellerResult) error {
	return writeCSVFile(path, func(w io.Writer) error {
		return encodeCSV(w, SellerColumns, sellers)
	})
}

func writeCSVFile(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func encodeCSV[T any](w io.Writer, cols []Column[T], items []T) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(headers(cols)); err != nil {
		return err
	}
	for _, item := range items {
		if err := cw.Write(row(cols, item)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
