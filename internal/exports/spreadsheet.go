// Package exports writes confirmed orders as xlsx spreadsheets for the
// operator's ordering system.
package exports

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"orderbot_backend/internal/orders"

	"github.com/xuri/excelize/v2"
)

const (
	sheetName      = "Pedido"
	headerCode     = "Código"
	headerQuantity = "Cantidad"
	fileTimeLayout = "20060102-150405"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SpreadsheetRenderer writes one file per confirmed order into dir.
type SpreadsheetRenderer struct {
	dir string
}

func NewSpreadsheetRenderer(dir string) *SpreadsheetRenderer {
	return &SpreadsheetRenderer{dir: dir}
}

// RenderSpreadsheet writes pedido_<client>_<timestamp>.xlsx and returns its path.
func (r *SpreadsheetRenderer) RenderSpreadsheet(ctx context.Context, order orders.Order) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(order.Lines) == 0 {
		return "", fmt.Errorf("order for %s has no lines", order.ClientCode)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return "", err
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Pedido " + order.ClientCode,
		Subject: order.ClientName,
		Created: order.ConfirmedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return "", err
	}

	if err := writeRows(f, order); err != nil {
		return "", err
	}

	path := filepath.Join(r.dir, FileName(order))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save spreadsheet: %w", err)
	}
	return path, nil
}

func writeRows(f *excelize.File, order orders.Order) error {
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0EBF5"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	if err := f.SetCellValue(sheetName, "A1", headerCode); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, "B1", headerQuantity); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", "B1", header); err != nil {
		return err
	}

	for i, line := range order.Lines {
		row := i + 2
		if err := f.SetCellValue(sheetName, "A"+strconv.Itoa(row), line.Code); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, "B"+strconv.Itoa(row), line.Quantity); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 18); err != nil {
		return err
	}
	return f.SetColWidth(sheetName, "B", "B", 12)
}

// FileName is the export name for order, unique per client and second.
func FileName(order orders.Order) string {
	client := unsafeFileChars.ReplaceAllString(order.ClientCode, "_")
	if client == "" {
		client = "cliente"
	}
	at := order.ConfirmedAt
	if at.IsZero() {
		at = time.Now()
	}
	return fmt.Sprintf("pedido_%s_%s.xlsx", client, at.Format(fileTimeLayout))
}
