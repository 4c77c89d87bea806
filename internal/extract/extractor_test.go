package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hanlin/piaoju/internal/domain"
	"github.com/hanlin/piaoju/internal/pdfreader"
)

// fakePage serves canned text, tables and region crops.
type fakePage struct {
	text    string
	tables  []pdfreader.Table
	crops   map[pdfreader.Region]string
	cropErr error
}

func (p *fakePage) Text() string              { return p.text }
func (p *fakePage) Tables() []pdfreader.Table { return p.tables }

func (p *fakePage) CropText(_ context.Context, r pdfreader.Region) (string, error) {
	if p.cropErr != nil {
		return "", p.cropErr
	}
	return p.crops[r], nil
}

type fakeDoc struct {
	pages []pdfreader.Page
}

func (d *fakeDoc) Pages() []pdfreader.Page { return d.pages }
func (d *fakeDoc) Close() error            { return nil }

type fakeOpener struct {
	docs map[string]pdfreader.Document
	err  error
}

func (o *fakeOpener) Open(_ context.Context, path string) (pdfreader.Document, error) {
	if o.err != nil {
		return nil, o.err
	}
	doc, ok := o.docs[path]
	if !ok {
		return nil, pdfreader.ErrCorruptDocument
	}
	return doc, nil
}

func invoicePage() *fakePage {
	return &fakePage{
		text: "深圳增值税电子普通发票\n价税合计(小写) ¥339.00",
		crops: map[pdfreader.Region]string{
			buyerRegion:  "名称: 某某物流有限公司\n纳税人识别号: 91440300MA5DA1234X",
			metaRegion:   "发票代码: 044001911211\n发票号码: 12345678\n开票日期: 2024年03月15日",
			amountRegion: "合 计 ¥300.00",
			sellerRegion: "名称: 某高速公路运营有限公司\n纳税人识别号: 91440300MA5EB5678Y",
		},
	}
}

func TestExtractInvoice(t *testing.T) {
	opener := &fakeOpener{docs: map[string]pdfreader.Document{
		"invoice.pdf": &fakeDoc{pages: []pdfreader.Page{invoicePage()}},
	}}
	e := NewExtractor(opener)

	recs := e.Extract(context.Background(), "invoice.pdf")
	if len(recs) != 1 {
		t.Fatalf("Extract returned %d records, want 1", len(recs))
	}

	rec := recs[0]
	if rec.Kind != domain.KindInvoice {
		t.Errorf("Kind = %q, want %q", rec.Kind, domain.KindInvoice)
	}
	if rec.BuyerName != "某某物流有限公司" {
		t.Errorf("BuyerName = %q", rec.BuyerName)
	}
	if rec.BuyerTaxID != "91440300MA5DA1234X" {
		t.Errorf("BuyerTaxID = %q", rec.BuyerTaxID)
	}
	if rec.InvoiceCode != "044001911211" {
		t.Errorf("InvoiceCode = %q", rec.InvoiceCode)
	}
	if rec.InvoiceNumber != "12345678" {
		t.Errorf("InvoiceNumber = %q", rec.InvoiceNumber)
	}
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !rec.IssueDate.Equal(want) {
		t.Errorf("IssueDate = %v, want %v", rec.IssueDate, want)
	}
	if rec.Amount != 300.00 {
		t.Errorf("Amount = %v, want 300.00", rec.Amount)
	}
	if rec.TotalAmount != 339.00 {
		t.Errorf("TotalAmount = %v, want 339.00", rec.TotalAmount)
	}
	if rec.SellerName != "某高速公路运营有限公司" {
		t.Errorf("SellerName = %q", rec.SellerName)
	}
	if rec.SourcePath != "invoice.pdf" {
		t.Errorf("SourcePath = %q", rec.SourcePath)
	}
}

func TestExtractInvoiceMissingFields(t *testing.T) {
	page := &fakePage{
		text: "电子专用发票",
		crops: map[pdfreader.Region]string{
			buyerRegion:  "内容已模糊",
			metaRegion:   "无法识别",
			amountRegion: "",
			sellerRegion: "",
		},
	}
	opener := &fakeOpener{docs: map[string]pdfreader.Document{
		"blurry.pdf": &fakeDoc{pages: []pdfreader.Page{page}},
	}}
	e := NewExtractor(opener)

	recs := e.Extract(context.Background(), "blurry.pdf")
	if len(recs) != 1 {
		t.Fatalf("Extract returned %d records, want 1", len(recs))
	}

	rec := recs[0]
	if rec.BuyerName != "Unknown" || rec.InvoiceCode != "Unknown" || rec.InvoiceNumber != "Unknown" {
		t.Errorf("missing fields should fall back to Unknown, got buyer=%q code=%q number=%q",
			rec.BuyerName, rec.InvoiceCode, rec.InvoiceNumber)
	}
	if !rec.IssueDate.Equal(domain.SentinelDate) {
		t.Errorf("IssueDate = %v, want sentinel", rec.IssueDate)
	}
	if rec.Amount != 0.0 || rec.TotalAmount != 0.0 {
		t.Errorf("amounts should degrade to 0, got %v and %v", rec.Amount, rec.TotalAmount)
	}
}

func TestFindTotalStrategies(t *testing.T) {
	testCases := []struct {
		name         string
		text         string
		wantRaw      float64
		wantStrategy string
	}{
		{"labeled lowercase", "价税合计(小写) ¥120.00", 120.00, "labeled-lowercase"},
		{"spaced label", "合 计(小写) ￥88.88", 88.88, "labeled-lowercase"},
		{"bare marker", "(小写) 42.50", 42.50, "lowercase-marker"},
		{"label only", "价税合计 人民币 ¥10.00", 10.00, "labeled-plain"},
		{"no match", "没有任何金额标签", 0.0, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, strategy := findTotal(tc.text)
			if strategy != tc.wantStrategy {
				t.Errorf("strategy = %q, want %q", strategy, tc.wantStrategy)
			}
			if got := parseAmount(raw); got != tc.wantRaw {
				t.Errorf("amount = %v, want %v", got, tc.wantRaw)
			}
		})
	}
}

func TestExtractSummary(t *testing.T) {
	page := &fakePage{
		text: "收费公路通行费电子票据汇总单\n" +
			"汇总单号: 2024050100001\n" +
			"购买方名称: 某运输集团有限公司\n" +
			"纳税人识别号: 91110000MA01C2345D\n" +
			"开票申请日期: 2024-05-01\n" +
			"金额合计(小写) ￥120.50",
		tables: []pdfreader.Table{
			// Cover table without the item headers, must be ignored.
			{
				{"申请人", "联系电话"},
				{"张三", "13800000000"},
			},
			{
				{"序号", "票据代码", "票据号码", "金额", "交易时间"},
				{"1", "144012345671", "00000001", "￥60.25", "2024-04-28"},
				{"2", "144012345671", "00000002", "￥60.25", "2024-04-29"},
				// Sparse row, below the populated-cell threshold.
				{"3", "144012345671", "", "", ""},
			},
		},
	}
	opener := &fakeOpener{docs: map[string]pdfreader.Document{
		"summary.pdf": &fakeDoc{pages: []pdfreader.Page{page}},
	}}
	e := NewExtractor(opener)

	recs := e.Extract(context.Background(), "summary.pdf")
	if len(recs) != 2 {
		t.Fatalf("Extract returned %d records, want 2", len(recs))
	}

	for i, rec := range recs {
		if rec.Kind != domain.KindSummary {
			t.Errorf("record %d: Kind = %q, want %q", i, rec.Kind, domain.KindSummary)
		}
		if rec.SummaryID != "2024050100001" {
			t.Errorf("record %d: SummaryID = %q", i, rec.SummaryID)
		}
		if rec.InvoiceCode != "144012345671" {
			t.Errorf("record %d: InvoiceCode = %q", i, rec.InvoiceCode)
		}
		if rec.Amount != 60.25 {
			t.Errorf("record %d: Amount = %v, want 60.25", i, rec.Amount)
		}
		if rec.TotalAmount != 120.50 {
			t.Errorf("record %d: TotalAmount = %v, want 120.50", i, rec.TotalAmount)
		}
		if rec.BuyerName != "某运输集团有限公司" {
			t.Errorf("record %d: BuyerName = %q", i, rec.BuyerName)
		}
		want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		if !rec.IssueDate.Equal(want) {
			t.Errorf("record %d: IssueDate = %v, want %v", i, rec.IssueDate, want)
		}
	}
	if recs[0].InvoiceNumber != "00000001" || recs[1].InvoiceNumber != "00000002" {
		t.Errorf("InvoiceNumbers = %q, %q", recs[0].InvoiceNumber, recs[1].InvoiceNumber)
	}
}

func TestExtractSummaryDefaultSeller(t *testing.T) {
	page := &fakePage{
		text: "收费公路通行费电子票据汇总单\n汇总单号: 10001",
		tables: []pdfreader.Table{
			{
				{"序号", "票据代码", "票据号码", "金额", "备注"},
				{"1", "0440", "1234", "￥5.00", "ok"},
			},
		},
	}
	opener := &fakeOpener{docs: map[string]pdfreader.Document{
		"summary.pdf": &fakeDoc{pages: []pdfreader.Page{page}},
	}}
	e := NewExtractor(opener)

	recs := e.Extract(context.Background(), "summary.pdf")
	if len(recs) != 1 {
		t.Fatalf("Extract returned %d records, want 1", len(recs))
	}
	if recs[0].SellerName != "收费公路管理方" {
		t.Errorf("SellerName = %q, want default", recs[0].SellerName)
	}
}

func TestExtractDegradesToEmpty(t *testing.T) {
	cropFail := invoicePage()
	cropFail.cropErr = errors.New("render failed")

	opener := &fakeOpener{docs: map[string]pdfreader.Document{
		"unknown.pdf":  &fakeDoc{pages: []pdfreader.Page{&fakePage{text: "通行费索取发票申请表"}}},
		"empty.pdf":    &fakeDoc{},
		"cropfail.pdf": &fakeDoc{pages: []pdfreader.Page{cropFail}},
	}}
	e := NewExtractor(opener)

	for _, path := range []string{"missing.pdf", "unknown.pdf", "empty.pdf", "cropfail.pdf"} {
		if recs := e.Extract(context.Background(), path); recs != nil {
			t.Errorf("Extract(%q) = %v, want nil", path, recs)
		}
	}
}
