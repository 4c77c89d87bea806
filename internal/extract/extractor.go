// Package extract classifies financial documents and recovers
// structured fields via layout-aware text search.
package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/hanlin/piaoju/internal/domain"
	"github.com/hanlin/piaoju/internal/logger"
	"github.com/hanlin/piaoju/internal/pdfreader"
)

// Document classification markers, matched against the first page text.
const (
	summaryMarker        = "收费公路通行费电子票据汇总单"
	invoiceMarkerGeneral = "电子普通发票"
	invoiceMarkerSpecial = "电子专用发票"
)

// Proportional page regions for the standalone invoice layout. These
// are fractions of page geometry, not absolute coordinates, so they
// hold across render resolutions.
var (
	buyerRegion  = pdfreader.Region{Left: 0.05, Top: 0.20, Right: 0.48, Bottom: 0.40}
	metaRegion   = pdfreader.Region{Left: 0.45, Top: 0.05, Right: 0.95, Bottom: 0.30}
	amountRegion = pdfreader.Region{Left: 0.05, Top: 0.40, Right: 0.95, Bottom: 0.70}
	sellerRegion = pdfreader.Region{Left: 0.05, Top: 0.70, Right: 0.95, Bottom: 0.95}
)

// Label-anchored field patterns. Multi-character labels tolerate
// spacing between characters; colons are optional and may be
// full-width.
var (
	partyNameRe   = regexp.MustCompile(`(?i)名\s*称\s*[:：]?\s*([^\n]+)`)
	taxIDRe       = regexp.MustCompile(`(?i)纳税人识别号\s*[:：]?\s*([A-Z0-9]+)`)
	invoiceCodeRe = regexp.MustCompile(`发票代码\s*[:：]?\s*(\w+)`)
	invoiceNumRe  = regexp.MustCompile(`发票号码\s*[:：]?\s*(\w+)`)
	issueDateRe   = regexp.MustCompile(`开票日期\s*[:：]?\s*(\d{4}年\d{2}月\d{2}日|\d{4}-\d{2}-\d{2})`)
	lineAmountRe  = regexp.MustCompile(`(?i)合\s*计\s+[¥￥\s]*([\d.]+)[\s\d.]*`)

	summaryIDRe        = regexp.MustCompile(`(?is)汇总单号\s*:\s*(\d+)`)
	summaryBuyerRe     = regexp.MustCompile(`(?i)购\s*买\s*方\s*名\s*称\s*[:：]?\s*([^\n]+)`)
	summarySellerRe    = regexp.MustCompile(`(?i)销\s*售\s*方\s*名\s*称\s*[:：]?\s*([^\n]+)`)
	summaryIssueDateRe = regexp.MustCompile(`(?is)(开票申请日期|开票日期)\s*[:：]?\s*(\d{4}-\d{2}-\d{2}|\d{4}年\d{2}月\d{2}日)`)
	summaryTotalRe     = regexp.MustCompile(`(?is)\(小写\)\s*￥?([0-9.]+)|交易金额\s*￥?([0-9.]+)`)
)

// totalStrategy is one fallback pattern for the tax-inclusive total.
// The total is the least stable field because its position depends on
// the text flow of the specific layout, so strategies are tried in
// priority order against the full page text and the first match wins.
type totalStrategy struct {
	name string
	re   *regexp.Regexp
}

var totalStrategies = []totalStrategy{
	// Strongest: the label carries both 合计 and (小写).
	{"labeled-lowercase", regexp.MustCompile(`(?is)(?:价税合计\(小写\)|合\s*计\(小写\))\s*.*?([¥￥\s]*[\d,]+\.?\d*)`)},
	// The bare (小写) marker followed by the first numeric token.
	{"lowercase-marker", regexp.MustCompile(`(?is)\((?:小写)\)\s*.*?([¥￥\s]*[\d,]+\.?\d*)`)},
	// 价税合计 alone, skipping intervening non-currency text.
	{"labeled-plain", regexp.MustCompile(`(?is)价税合计\s*[^¥￥\d]*([¥￥\s]*[\d,]+\.?\d*)`)},
}

// findTotal applies the total strategies in order, returning the raw
// matched token of the first that hits, and the strategy name. Empty
// string when none match.
func findTotal(fullText string) (string, string) {
	for _, s := range totalStrategies {
		if m := s.re.FindStringSubmatch(fullText); m != nil {
			return m[1], s.name
		}
	}
	return "", ""
}

// Summary itemization table: header column labels and the minimum
// populated cells a data row must carry.
const (
	tableHeaderCode   = "票据代码"
	tableHeaderNumber = "票据号码"
	minSummaryCells   = 5
)

// Extractor turns one document into zero or more extracted records.
type Extractor struct {
	opener pdfreader.Opener
}

// NewExtractor creates an Extractor over the given document opener.
func NewExtractor(opener pdfreader.Opener) *Extractor {
	return &Extractor{opener: opener}
}

// Extract classifies the document at path and applies the matching
// strategy. It never fails: corrupt documents, crop failures and
// unrecognized types all degrade to an empty result with a logged
// reason.
func (e *Extractor) Extract(ctx context.Context, path string) []domain.ExtractedRecord {
	log := logger.FromContext(ctx).WithField(logger.FieldDocument, path)

	doc, err := e.opener.Open(ctx, path)
	if err != nil {
		log.WithError(err).Warn("Failed to open document, skipping")
		return nil
	}
	defer doc.Close()

	pages := doc.Pages()
	if len(pages) == 0 {
		log.Warn("Document has no pages, skipping")
		return nil
	}

	page := pages[0]
	fullText := page.Text()

	switch {
	case strings.Contains(fullText, summaryMarker):
		return e.extractSummary(ctx, fullText, page.Tables(), path)
	case strings.Contains(fullText, invoiceMarkerGeneral),
		strings.Contains(fullText, invoiceMarkerSpecial):
		return e.extractInvoice(ctx, page, fullText, path)
	default:
		// Intentional: cover sheets and application forms land here.
		log.Info("Unknown document type, skipping")
		return nil
	}
}

// extractInvoice recovers one record from a standalone invoice using
// four proportional crop regions, with the total taken from the full
// page text.
func (e *Extractor) extractInvoice(ctx context.Context, page pdfreader.Page, fullText, path string) []domain.ExtractedRecord {
	log := logger.FromContext(ctx).WithField(logger.FieldDocument, path)

	var buyerText, metaText, amountText, sellerText string
	crops := []struct {
		region pdfreader.Region
		dst    *string
	}{
		{buyerRegion, &buyerText},
		{metaRegion, &metaText},
		{amountRegion, &amountText},
		{sellerRegion, &sellerText},
	}
	for _, c := range crops {
		text, err := page.CropText(ctx, c.region)
		if err != nil {
			log.WithError(err).Warn("Page crop failed, skipping document")
			return nil
		}
		*c.dst = text
	}

	return e.buildInvoiceRecord(ctx, buyerText, metaText, amountText, sellerText, fullText, path)
}

func (e *Extractor) buildInvoiceRecord(ctx context.Context, buyerText, metaText, amountText, sellerText, fullText, path string) []domain.ExtractedRecord {
	rec := domain.ExtractedRecord{
		Kind:          domain.KindInvoice,
		BuyerName:     matchGroup(partyNameRe, buyerText, "Unknown"),
		BuyerTaxID:    matchGroup(taxIDRe, buyerText, ""),
		InvoiceCode:   matchGroup(invoiceCodeRe, metaText, "Unknown"),
		InvoiceNumber: matchGroup(invoiceNumRe, metaText, "Unknown"),
		IssueDate:     parseDate(matchGroup(issueDateRe, metaText, "")),
		Amount:        parseAmount(matchGroup(lineAmountRe, amountText, "")),
		SellerName:    matchGroup(partyNameRe, sellerText, "Unknown"),
		SellerTaxID:   matchGroup(taxIDRe, sellerText, ""),
		SourcePath:    path,
	}

	raw, strategy := findTotal(fullText)
	rec.TotalAmount = parseAmount(raw)
	if strategy != "" {
		logger.CtxDebug(ctx, "Total amount matched by strategy %s", strategy)
	} else {
		logger.CtxDebug(ctx, "No total amount strategy matched, defaulting to 0")
	}

	return []domain.ExtractedRecord{rec}
}

// extractSummary recovers one record per itemized table row of a toll
// summary sheet. Sheet-level fields are scanned from the full page text
// because the summary layout is less rigidly positioned than the
// standalone invoice.
func (e *Extractor) extractSummary(ctx context.Context, fullText string, tables []pdfreader.Table, path string) []domain.ExtractedRecord {
	summaryID := matchGroup(summaryIDRe, fullText, "")
	buyerName := matchGroup(summaryBuyerRe, fullText, "Unknown")
	buyerTaxID := matchGroup(taxIDRe, fullText, "")
	sellerName := matchGroup(summarySellerRe, fullText, "收费公路管理方")

	issueDate := domain.SentinelDate
	if m := summaryIssueDateRe.FindStringSubmatch(fullText); m != nil {
		issueDate = parseDate(m[2])
	}

	var totalAmount float64
	if m := summaryTotalRe.FindStringSubmatch(fullText); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		totalAmount = parseAmount(raw)
	}

	var records []domain.ExtractedRecord
	for _, table := range tables {
		if len(table) < 2 || !isItemizationTable(table[0]) {
			continue
		}
		for _, row := range table[1:] {
			cells := nonEmptyCells(row)
			if len(cells) < minSummaryCells {
				continue
			}
			records = append(records, domain.ExtractedRecord{
				Kind:          domain.KindSummary,
				SummaryID:     summaryID,
				InvoiceCode:   cells[1],
				InvoiceNumber: cells[2],
				IssueDate:     issueDate,
				Amount:        parseAmount(strings.ReplaceAll(cells[3], "￥", "")),
				TotalAmount:   totalAmount,
				BuyerName:     buyerName,
				BuyerTaxID:    buyerTaxID,
				SellerName:    sellerName,
				SellerTaxID:   "",
				SourcePath:    path,
			})
		}
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldDocument: path,
		"rows":               len(records),
	}).Info("Extracted summary sheet")
	return records
}

// isItemizationTable reports whether a header row names the item
// code/number columns.
func isItemizationTable(header []string) bool {
	joined := strings.Join(trimCells(header), "")
	return strings.Contains(joined, tableHeaderCode) || strings.Contains(joined, tableHeaderNumber)
}

func trimCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, strings.TrimSpace(c))
	}
	return out
}

func nonEmptyCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}
