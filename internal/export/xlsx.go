package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/maltedev/seller-scraper/internal/models"
)

const defaultSheet = "Sheet1"

type XLSXWriter struct {
	path string
}

func NewXLSXWriter(path string) *XLSXWriter {
	return &XLSXWriter{path: path}
}

// Write replaces the workbook. The seller sheet exists only when there are
// sellers.
func (w *XLSXWriter) Write(products []*models.Product, sellers []models.SellerResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(defaultSheet, ProductSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := writeSheet(f, ProductSheet, ProductColumns, products); err != nil {
		return err
	}

	if len(sellers) > 0 {
		if _, err := f.NewSheet(SellerSheet); err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}
		if err := writeSheet(f, SellerSheet, SellerColumns, sellers); err != nil {
			return err
		}
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", w.path, err)
	}
	return nil
}

func writeSheet[T any](f *excelize.File, sheet string, cols []Column[T], items []T) error {
	if err := setRow(f, sheet, 1, headers(cols)); err != nil {
		return err
	}
	for i, item := range items {
		if err := setRow(f, sheet, i+2, row(cols, item)); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}

	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}

	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, rowNum, err)
	}
	return nil
}
