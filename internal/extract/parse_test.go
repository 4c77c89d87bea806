package extract

import (
	"testing"
	"time"

	"github.com/hanlin/piaoju/internal/domain"
)

func TestParseAmount(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  float64
	}{
		{"plain", "1234.56", 1234.56},
		{"half-width yen", "¥1234.56", 1234.56},
		{"full-width yen", "￥1234.56", 1234.56},
		{"thousands separator", "¥1,234.56", 1234.56},
		{"embedded whitespace", "￥ 1 234.56", 1234.56},
		{"integer", "88", 88},
		{"empty", "", 0.0},
		{"garbage", "abc", 0.0},
		{"mixed garbage", "¥abc", 0.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseAmount(tc.input)
			if got != tc.want {
				t.Errorf("parseAmount(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"cjk form", "2024年03月15日", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"iso form", "2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"empty", "", domain.SentinelDate},
		{"garbage", "not a date", domain.SentinelDate},
		{"partial cjk", "2024年03月", domain.SentinelDate},
		{"padded", "  2024-12-01  ", time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseDate(tc.input)
			if !got.Equal(tc.want) {
				t.Errorf("parseDate(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestFormatDateRoundTrip(t *testing.T) {
	d := time.Date(2023, 11, 5, 0, 0, 0, 0, time.UTC)

	for _, layout := range []string{dateLayoutCJK, dateLayoutISO} {
		s := formatDate(d, layout)
		back := parseDate(s)
		if !back.Equal(d) {
			t.Errorf("round trip through %q: got %v, want %v", layout, back, d)
		}
	}
}

func TestMatchGroup(t *testing.T) {
	if got := matchGroup(invoiceCodeRe, "发票代码: 044001234567", "fallback"); got != "044001234567" {
		t.Errorf("matchGroup = %q, want 044001234567", got)
	}
	if got := matchGroup(invoiceCodeRe, "no code here", "fallback"); got != "fallback" {
		t.Errorf("matchGroup fallback = %q, want fallback", got)
	}
}
