package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/restaurant-receipts/internal/domain/receipt"
	"github.com/garyjia/restaurant-receipts/internal/domain/workflow"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Recibos"

var exportHeaders = []string{
	"Referencia",
	"Restaurante",
	"Estado",
	"Proveedor",
	"Factura",
	"Fecha",
	"Total",
	"Productos",
	"Confianza",
	"Validación",
	"Editado",
	"Pago",
	"Inventario aplicado",
	"Observaciones",
	"Creado",
}

// ExportService produces spreadsheet exports of receipts
type ExportService interface {
	ExportReceipts(ctx context.Context, filter receipt.ListFilter) ([]byte, error)
}

type exportServiceImpl struct {
	receipts ReceiptService
	logger   Logger
}

// NewExportService creates a new ExportService
func NewExportService(receipts ReceiptService, logger Logger) ExportService {
	return &exportServiceImpl{receipts: receipts, logger: logger}
}

// ExportReceipts writes one row per receipt matching the filter, using the effective data
func (s *exportServiceImpl) ExportReceipts(ctx context.Context, filter receipt.ListFilter) ([]byte, error) {
	records, err := s.receipts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(exportSheet, cell, h)
	}

	for i, r := range records {
		row := i + 2
		write := func(col int, v interface{}) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(exportSheet, cell, v)
		}

		write(1, r.Reference)
		write(2, r.RestaurantID)
		write(3, workflow.GetDisplayStatus(r.State).Label)

		if e := r.EffectiveExtraction(); e != nil {
			write(4, e.SupplierNameValue())
			write(5, e.InvoiceNumberValue())
			write(6, e.DateValue())
			if e.Total != nil {
				write(7, *e.Total)
			}
			write(8, len(e.Items))
		}

		write(9, r.ConfidenceScore)
		write(10, r.ValidationStatus)
		write(11, yesNo(r.HasManualEdits))
		write(12, r.PaymentReference)
		if r.InventoryAppliedAt != nil {
			write(13, r.InventoryAppliedAt.Format(time.RFC3339))
		}
		write(14, strings.Join(r.ValidationIssues, ". "))
		write(15, r.CreatedAt.Format(time.RFC3339))
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 38)
	_ = f.SetColWidth(exportSheet, "B", "C", 18)
	_ = f.SetColWidth(exportSheet, "D", "D", 32)
	_ = f.SetColWidth(exportSheet, "E", "M", 16)
	_ = f.SetColWidth(exportSheet, "N", "N", 60)
	_ = f.SetColWidth(exportSheet, "O", "O", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("Receipts exported", "rows", len(records), "state", strings.TrimSpace(string(filter.State)))
	return buf.Bytes(), nil
}

func yesNo(b bool) string {
	if b {
		return "Sí"
	}
	return "No"
}
