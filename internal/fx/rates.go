package fx

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

// fredSeries maps a currency to the FRED daily series quoting it against USD.
var fredSeries = map[string]string{
	"JPY": "DEXJPUS",
	"EUR": "DEXUSEU",
	"MXN": "DEXMXUS",
	"GBP": "DEXUSUK",
	"CAD": "DEXCAUS",
	"AUD": "DEXUSAL",
	"CHF": "DEXSZUS",
	"HKD": "DEXHKUS",
	"ZAR": "DEXSFUS",
	"SEK": "DEXSDUS",
	"SGD": "DEXSIUS",
	"NOK": "DEXNOUS",
	"DKK": "DEXDNUS",
}

// UnsupportedCurrencyError is returned for a currency without a FRED series.
type UnsupportedCurrencyError struct {
	Currency string
}

func (e *UnsupportedCurrencyError) Error() string {
	return fmt.Sprintf("no FX series for currency %q", e.Currency)
}

// SeriesID returns the FRED identifier for currency.
func SeriesID(currency string) (string, error) {
	id, ok := fredSeries[currency]
	if !ok {
		return "", &UnsupportedCurrencyError{Currency: currency}
	}
	return id, nil
}

// quotedPerUSD reports whether a series counts foreign units per dollar.
func quotedPerUSD(id string) bool {
	return strings.HasSuffix(id, "US")
}

// SeriesSource fetches raw FX observations.
type SeriesSource interface {
	Series(ctx context.Context, id string, from, to time.Time) (RateSeries, error)
}

// Rates caches currency to USD series for one conversion batch.
// It is not safe for concurrent use.
type Rates struct {
	source SeriesSource
	from   time.Time
	to     time.Time
	cache  map[string]RateSeries
	logger *slog.Logger
}

// NewRates creates a rate cache fetching observations between from and to.
func NewRates(source SeriesSource, from, to time.Time, logger *slog.Logger) *Rates {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rates{
		source: source,
		from:   from,
		to:     to,
		cache:  make(map[string]RateSeries),
		logger: logger,
	}
}

// Resolve returns the currency to USD series for currency, fetching it on
// first use. Values are inverted for series quoted per USD, and non-finite
// values are dropped.
func (r *Rates) Resolve(ctx context.Context, currency string) (RateSeries, error) {
	if s, ok := r.cache[currency]; ok {
		return s, nil
	}

	id, err := SeriesID(currency)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("fetching FX series", "currency", currency, "series", id)
	raw, err := r.source.Series(ctx, id, r.from, r.to)
	if err != nil {
		return nil, fmt.Errorf("FX series %s for %s: %w", id, currency, err)
	}

	invert := quotedPerUSD(id)
	series := make(RateSeries, len(raw))
	for date, v := range raw {
		if invert {
			v = 1 / v
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		series[date] = v
	}

	r.cache[currency] = series
	return series, nil
}
