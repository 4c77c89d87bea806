package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hanlin/piaoju/internal/repository"
)

// ExportService produces XLSX workbooks of invoice records.
type ExportService struct {
	invoices *repository.InvoiceRepository
}

// NewExportService creates a new ExportService.
func NewExportService(invoices *repository.InvoiceRepository) *ExportService {
	return &ExportService{invoices: invoices}
}

// ExportXLSX returns a workbook of all records matching term (empty
// term exports everything), ordered newest first.
func (s *ExportService) ExportXLSX(ctx context.Context, term string) ([]byte, error) {
	recs, err := s.invoices.Search(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Invoices"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Kind",
		"Summary ID",
		"Invoice Code",
		"Invoice Number",
		"Issue Date",
		"Amount",
		"Total Amount",
		"Buyer",
		"Buyer Tax ID",
		"Seller",
		"Seller Tax ID",
		"File",
		"Status",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for rowIdx, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, rowIdx+2)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, string(r.Kind))
		write(2, r.SummaryID)
		write(3, r.InvoiceCode)
		write(4, r.InvoiceNumber)
		if !r.IssueDate.IsZero() {
			write(5, r.IssueDate.Format(time.DateOnly))
		}
		write(6, r.Amount)
		write(7, r.TotalAmount)
		write(8, r.BuyerName)
		write(9, r.BuyerTaxID)
		write(10, r.SellerName)
		write(11, r.SellerTaxID)
		write(12, r.FilePath)
		write(13, string(r.Status))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf.Bytes(), nil
}
