package fx

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/sabarim/eodfetch/internal/historical"
)

// usdPlaces is the rounding precision of converted prices.
const usdPlaces = 6

// Normalize prices bars in USD. Only dates present in rates survive; the
// result is ordered oldest first.
func Normalize(bars []historical.Bar, rates RateSeries) []historical.Bar {
	out := make([]historical.Bar, 0, len(bars))
	for _, bar := range bars {
		usd, ok := ToUSD(bar.Date, bar.AdjClose, rates)
		if !ok {
			continue
		}
		bar.AdjCloseUSD = usd
		out = append(out, bar)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// ToUSD converts one adjusted close. It reports false when rates has no
// entry for the date or the product is not finite.
func ToUSD(date time.Time, adjClose float64, rates RateSeries) (float64, bool) {
	rate, ok := rates[date.Format(historical.DateLayout)]
	if !ok {
		return 0, false
	}
	v := rate * adjClose
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return roundPlaces(v, usdPlaces), true
}

// roundPlaces rounds the exact binary value of v to places decimals,
// ties to even.
func roundPlaces(v float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return r
}
