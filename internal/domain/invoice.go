package domain

import "time"

// RecordKind distinguishes standalone invoices from summary-sheet rows.
type RecordKind string

const (
	KindInvoice RecordKind = "invoice"
	KindSummary RecordKind = "summary"
)

// RecordStatus represents the archival state of an invoice record.
// KindSummary rows and standalone invoices share the same lifecycle:
// a record is "active" once its backing file has been copied into the
// archive, and "incomplete" when the database row exists but the file
// copy failed and needs manual reconciliation.
type RecordStatus string

const (
	RecordStatusActive     RecordStatus = "active"
	RecordStatusIncomplete RecordStatus = "incomplete"
)

// SentinelDate is used when an issue date is absent or unparsable so that
// ordering by date stays total.
var SentinelDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// InvoiceRecord represents one extracted document row. A standalone
// invoice yields exactly one record; a summary sheet yields one record
// per itemized table row, all sharing the sheet's SummaryID and total.
type InvoiceRecord struct {
	ID            uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind          RecordKind   `gorm:"type:text;not null" json:"kind"`
	SummaryID     string       `gorm:"type:text;index" json:"summary_id,omitempty"`
	InvoiceCode   string       `gorm:"type:text;not null;uniqueIndex:idx_invoices_code_number" json:"invoice_code"`
	InvoiceNumber string       `gorm:"type:text;not null;uniqueIndex:idx_invoices_code_number" json:"invoice_number"`
	IssueDate     time.Time    `gorm:"index" json:"issue_date"`
	Amount        float64      `gorm:"default:0" json:"amount"`
	TotalAmount   float64      `gorm:"default:0" json:"total_amount"`
	BuyerName     string       `gorm:"type:text" json:"buyer_name"`
	BuyerTaxID    string       `gorm:"type:text" json:"buyer_tax_id"`
	SellerName    string       `gorm:"type:text" json:"seller_name"`
	SellerTaxID   string       `gorm:"type:text" json:"seller_tax_id"`
	FilePath      string       `gorm:"type:text" json:"file_path"`
	Status        RecordStatus `gorm:"type:text;default:active" json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// TableName returns the database table name for InvoiceRecord.
func (InvoiceRecord) TableName() string {
	return "invoices"
}

// ExtractedRecord is an InvoiceRecord as produced by the extractor,
// before persistence. SourcePath points at the transient copy in the
// expansion scratch directory and is consumed when the record is
// archived.
type ExtractedRecord struct {
	Kind          RecordKind
	SummaryID     string
	InvoiceCode   string
	InvoiceNumber string
	IssueDate     time.Time
	Amount        float64
	TotalAmount   float64
	BuyerName     string
	BuyerTaxID    string
	SellerName    string
	SellerTaxID   string
	SourcePath    string
}

// Record converts an ExtractedRecord into a persistable InvoiceRecord
// with the given archive destination.
func (e ExtractedRecord) Record(filePath string) *InvoiceRecord {
	return &InvoiceRecord{
		Kind:          e.Kind,
		SummaryID:     e.SummaryID,
		InvoiceCode:   e.InvoiceCode,
		InvoiceNumber: e.InvoiceNumber,
		IssueDate:     e.IssueDate,
		Amount:        e.Amount,
		TotalAmount:   e.TotalAmount,
		BuyerName:     e.BuyerName,
		BuyerTaxID:    e.BuyerTaxID,
		SellerName:    e.SellerName,
		SellerTaxID:   e.SellerTaxID,
		FilePath:      filePath,
		Status:        RecordStatusActive,
	}
}
