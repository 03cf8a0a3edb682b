package historical

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
)

// DateLayout is the date format used by the provider and in persisted files.
const DateLayout = "2006-01-02"

var (
	annotationPattern = regexp.MustCompile(`\((...)\)`)
	baseColumns       = []string{"Date", "Open", "High", "Low", "Close", "Volume", "AdjClose"}
)

// SplitHeader returns the first line of text and everything after it.
func SplitHeader(text string) (header, body string) {
	header, body, _ = strings.Cut(text, "\n")
	return strings.TrimRight(header, "\r"), body
}

// Annotate strips spaces from the payload header and appends the currency
// marker, e.g. "Adj Close" becomes "AdjClose(JPY)".
func Annotate(payload, currency string) string {
	header, body := SplitHeader(payload)
	header = strings.ReplaceAll(header, " ", "") + "(" + currency + ")"
	if body == "" {
		return header + "\n"
	}
	return header + "\n" + body
}

// HeaderCurrency returns the first currency annotation in header, or "".
func HeaderCurrency(header string) string {
	m := annotationPattern.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[1]
}

// IsNormalized reports whether a file header already carries USD values.
func IsNormalized(header string) bool {
	return strings.Contains(header, "USD")
}

// ParseBars decodes a provider payload or persisted file into bars, in file
// order. Annotated and converted headers are accepted.
func ParseBars(text string) ([]Bar, error) {
	header, body := SplitHeader(text)
	canonical, err := canonicalHeader(header)
	if err != nil {
		return nil, err
	}

	var records []barRecord
	if strings.TrimSpace(body) != "" {
		if err := gocsv.Unmarshal(strings.NewReader(canonical+"\n"+body), &records); err != nil {
			return nil, fmt.Errorf("decoding rows: %w", err)
		}
	}

	bars := make([]Bar, 0, len(records))
	for i, r := range records {
		date, err := time.Parse(DateLayout, strings.TrimSpace(r.Date))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		bars = append(bars, Bar{
			Date:        date,
			Open:        r.Open,
			High:        r.High,
			Low:         r.Low,
			Close:       r.Close,
			Volume:      r.Volume,
			AdjClose:    r.AdjClose,
			AdjCloseUSD: r.AdjCloseUSD,
		})
	}
	return bars, nil
}

func canonicalHeader(header string) (string, error) {
	cols := strings.Split(header, ",")
	if len(cols) < len(baseColumns) || len(cols) > len(baseColumns)+1 {
		return "", fmt.Errorf("unexpected header %q", header)
	}
	for i, want := range baseColumns {
		got := annotationPattern.ReplaceAllString(strings.ReplaceAll(cols[i], " ", ""), "")
		if got != want {
			return "", fmt.Errorf("unexpected column %q, want %q", cols[i], want)
		}
	}
	out := strings.Join(baseColumns, ",")
	if len(cols) > len(baseColumns) {
		out += ",AdjCloseUSD"
	}
	return out, nil
}

// Row is one data line of a persisted file, kept verbatim, with the two
// fields USD conversion needs.
type Row struct {
	Line     string
	Date     time.Time
	AdjClose float64
}

// ParseRows reads the data lines of text. Only the leading date and the
// trailing adjusted close are decoded; the other cells are not inspected.
func ParseRows(text string) ([]Row, error) {
	_, body := SplitHeader(text)
	var rows []Row
	for i, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cells := strings.Split(line, ",")
		if len(cells) < 2 {
			return nil, fmt.Errorf("row %d: too few cells", i+1)
		}
		date, err := time.Parse(DateLayout, strings.TrimSpace(cells[0]))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		adj, err := strconv.ParseFloat(strings.TrimSpace(cells[len(cells)-1]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: adjusted close: %w", i+1, err)
		}
		rows = append(rows, Row{Line: line, Date: date, AdjClose: adj})
	}
	return rows, nil
}
