package yahoo

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

type statField struct {
	name string
	code string
}

// statFields maps stat names to the provider's field codes, in request order
// for "all".
var statFields = []statField{
	{"name", "n"},
	{"price", "l1"},
	{"change", "c1"},
	{"change_pct", "p2"},
	{"after_hours_change", "c8"},
	{"volume", "v"},
	{"avg_daily_volume", "a2"},
	{"exchange", "x"},
	{"market_cap", "j1"},
	{"book_value", "b4"},
	{"ebitda", "j4"},
	{"dividend_per_share", "d"},
	{"dividend_yield", "y"},
	{"dividend_pay_date", "r1"},
	{"ex_dividend_date", "q"},
	{"earnings_per_share", "e"},
	{"52_week_high", "k"},
	{"52_week_low", "j"},
	{"high", "h"},
	{"low", "g"},
	{"open", "o"},
	{"last", "l"},
	{"previous_close", "p"},
	{"50_day_sma", "m3"},
	{"200_day_sma", "m4"},
	{"change_from_200_day_sma", "m5"},
	{"pct_change_from_200_day_sma", "m6"},
	{"change_from_50_day_sma", "m7"},
	{"pct_change_from_50_day_sma", "m8"},
	{"pe_ratio", "r"},
	{"peg_ratio", "r5"},
	{"ps_ratio", "p5"},
	{"pb_ratio", "p6"},
	{"short_ratio", "s7"},
	{"last_trade_date", "d1"},
	{"notes", "n4"},
	{"error_indication", "e1"},
}

// suffixedStats are reported with K/M/B/T magnitude suffixes.
var suffixedStats = map[string]bool{
	"ebitda":     true,
	"market_cap": true,
}

// StatNames returns every known stat name in table order.
func StatNames() []string {
	names := make([]string, len(statFields))
	for i, f := range statFields {
		names[i] = f.name
	}
	return names
}

// ExpandStats replaces the pseudo name "all" with the full table.
func ExpandStats(names []string) []string {
	for _, n := range names {
		if n == "all" {
			return StatNames()
		}
	}
	return names
}

// FieldCodes concatenates the provider codes for names.
func FieldCodes(names []string) (string, error) {
	var b strings.Builder
	for _, n := range names {
		code, ok := lookupStat(n)
		if !ok {
			return "", &UnknownStatError{Name: n}
		}
		b.WriteString(code)
	}
	return b.String(), nil
}

func lookupStat(name string) (string, bool) {
	for _, f := range statFields {
		if f.name == name {
			return f.code, true
		}
	}
	return "", false
}

// StatValue is one parsed field of a stats response.
type StatValue struct {
	Raw     string
	Number  float64
	Numeric bool
}

// MarshalJSON renders numbers as numbers and everything else as strings.
func (v StatValue) MarshalJSON() ([]byte, error) {
	if v.Numeric {
		return []byte(strconv.FormatFloat(v.Number, 'f', -1, 64)), nil
	}
	return []byte(strconv.Quote(v.Raw)), nil
}

// ParseSuffixed parses a number that may carry a K, M, B or T suffix.
func ParseSuffixed(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	if len(s) < 2 {
		return 0, &SuffixError{Value: s}
	}
	var mult float64
	switch s[len(s)-1] {
	case 'K':
		mult = 1e3
	case 'M':
		mult = 1e6
	case 'B':
		mult = 1e9
	case 'T':
		mult = 1e12
	default:
		return 0, &SuffixError{Value: s}
	}
	v, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return 0, &SuffixError{Value: s}
	}
	return v * mult, nil
}

// ParseStats decodes a stats response line positionally against names.
func ParseStats(names []string, line string) (map[string]StatValue, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimSpace(line)))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("decoding stats line: %w", err)
	}
	if len(fields) < len(names) {
		return nil, fmt.Errorf("stats line has %d fields, want %d", len(fields), len(names))
	}

	out := make(map[string]StatValue, len(names))
	for i, name := range names {
		raw := strings.TrimSpace(fields[i])
		if suffixedStats[name] {
			v, err := ParseSuffixed(raw)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", name, err)
			}
			out[name] = StatValue{Raw: raw, Number: v, Numeric: true}
			continue
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			out[name] = StatValue{Raw: raw, Number: v, Numeric: true}
			continue
		}
		out[name] = StatValue{Raw: raw}
	}
	return out, nil
}
