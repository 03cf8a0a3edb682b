package historical

import (
	"regexp"
	"strings"
)

var currencyPattern = regexp.MustCompile(`Currency in (...)\.`)

// ResolveCurrency scrapes the trading currency from a quote page.
// It returns "" when the page carries no currency marker.
func ResolveCurrency(page string) string {
	m := currencyPattern.FindStringSubmatch(page)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}
