package fx

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sabarim/eodfetch/internal/historical"
	"github.com/sabarim/eodfetch/internal/yahoo"
)

// DefaultFREDURL is the public graph CSV export.
const DefaultFREDURL = "https://fred.stlouisfed.org/graph/fredgraph.csv"

// RateSeries maps an ISO date to a rate.
type RateSeries map[string]float64

// FREDClient downloads daily observation series from FRED.
type FREDClient struct {
	baseURL    string
	httpClient yahoo.HTTPClient
	timeout    time.Duration
}

// NewFREDClient creates a new FRED client. An empty baseURL uses DefaultFREDURL.
func NewFREDClient(baseURL string, httpClient yahoo.HTTPClient, timeout time.Duration) *FREDClient {
	if baseURL == "" {
		baseURL = DefaultFREDURL
	}
	if httpClient == nil {
		httpClient = yahoo.NewHTTPClient(yahoo.DefaultPool(), 0)
	}
	return &FREDClient{baseURL: baseURL, httpClient: httpClient, timeout: timeout}
}

// Series returns the raw observations of id between from and to. Missing
// observations are NaN.
func (c *FREDClient) Series(ctx context.Context, id string, from, to time.Time) (RateSeries, error) {
	q := url.Values{}
	q.Set("id", id)
	q.Set("cosd", from.Format(historical.DateLayout))
	q.Set("coed", to.Format(historical.DateLayout))

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", id, res.Status)
	}
	return parseObservations(res.Body)
}

func parseObservations(r io.Reader) (RateSeries, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2

	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	out := make(RateSeries)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading observations: %w", err)
		}

		date := strings.TrimSpace(rec[0])
		if _, err := time.Parse(historical.DateLayout, date); err != nil {
			return nil, fmt.Errorf("observation date %q: %w", rec[0], err)
		}
		raw := strings.TrimSpace(rec[1])
		if raw == "." || raw == "" {
			out[date] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("observation %s: %w", date, err)
		}
		out[date] = v
	}
	return out, nil
}
