package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hanlin/piaoju/internal/domain"
)

var currencyJunk = regexp.MustCompile(`[¥￥\s,]`)

// parseAmount converts an extracted amount string to a float. Currency
// glyphs, whitespace and thousands separators are stripped first. Parse
// failures degrade to 0.0, never an error.
func parseAmount(s string) float64 {
	if s == "" {
		return 0.0
	}
	cleaned := currencyJunk.ReplaceAllString(strings.TrimSpace(s), "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0.0
	}
	return v
}

const (
	dateLayoutCJK = "2006年01月02日"
	dateLayoutISO = "2006-01-02"
)

// parseDate parses an issue date in either 2006年01月02日 or 2006-01-02
// form. Anything else yields the sentinel date so ordering stays total.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.SentinelDate
	}
	layout := dateLayoutISO
	if strings.Contains(s, "年") {
		layout = dateLayoutCJK
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return domain.SentinelDate
	}
	return t
}

// formatDate renders a date in the given layout; the inverse of
// parseDate for both supported forms.
func formatDate(t time.Time, layout string) string {
	return t.Format(layout)
}

// matchGroup returns the first capture group of the pattern in text, or
// fallback when there is no match.
func matchGroup(re *regexp.Regexp, text, fallback string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return fallback
}
