package yahoo

import (
	"fmt"
	"net/url"
	"time"
)

// Endpoint selects which provider resource a Request targets.
type Endpoint int

const (
	EndpointHistorical Endpoint = iota
	EndpointMainPage
	EndpointStats
)

func (e Endpoint) String() string {
	switch e {
	case EndpointHistorical:
		return "historical"
	case EndpointMainPage:
		return "mainpage"
	case EndpointStats:
		return "stats"
	default:
		return fmt.Sprintf("endpoint(%d)", int(e))
	}
}

// Response formats understood by the historical endpoint.
const (
	FormatCSV = "csv"
	FormatX   = "x"
)

// FrequencyDaily is the data type code for daily bars.
const FrequencyDaily = "d"

// DateRange bounds a historical query. Both ends are inclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Validate checks that Start is not after End.
func (r DateRange) Validate() error {
	if r.Start.After(r.End) {
		return fmt.Errorf("invalid date range: start %s is after end %s",
			r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	}
	return nil
}

// Request describes a single fetch.
type Request struct {
	Kind      Endpoint
	Symbol    string
	Range     DateRange     // historical only
	Frequency string        // historical only, defaults to FrequencyDaily
	Format    string        // historical only, defaults to FormatCSV
	Fields    string        // stats only, concatenated field codes
	Timeout   time.Duration // per-attempt timeout, 0 uses the client default
}

// Endpoints holds the base URLs of the provider resources.
type Endpoints struct {
	HistoricalCSV string
	HistoricalX   string
	MainPage      string
	Stats         string
}

// DefaultEndpoints returns the provider's public URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		HistoricalCSV: "http://ichart.finance.yahoo.com/table.csv",
		HistoricalX:   "http://ichart.finance.yahoo.com/x",
		MainPage:      "http://finance.yahoo.com/q",
		Stats:         "http://finance.yahoo.com/d/quotes.csv",
	}
}

// URL builds the request URL for req.
func (e Endpoints) URL(req Request) (string, error) {
	switch req.Kind {
	case EndpointHistorical:
		return e.historicalURL(req)
	case EndpointMainPage:
		q := url.Values{}
		q.Set("s", req.Symbol)
		return e.MainPage + "?" + q.Encode(), nil
	case EndpointStats:
		q := url.Values{}
		q.Set("s", req.Symbol)
		q.Set("f", req.Fields)
		return e.Stats + "?" + q.Encode(), nil
	default:
		return "", fmt.Errorf("unknown endpoint %s", req.Kind)
	}
}

func (e Endpoints) historicalURL(req Request) (string, error) {
	var base string
	switch req.Format {
	case FormatCSV, "":
		base = e.HistoricalCSV
	case FormatX:
		base = e.HistoricalX
	default:
		return "", &UnsupportedFormatError{Format: req.Format}
	}
	if err := req.Range.Validate(); err != nil {
		return "", err
	}
	freq := req.Frequency
	if freq == "" {
		freq = FrequencyDaily
	}

	sd, ed := req.Range.Start, req.Range.End
	// Months are zero-based on this endpoint.
	q := url.Values{}
	q.Set("s", req.Symbol)
	q.Set("a", fmt.Sprintf("%02d", int(sd.Month())-1))
	q.Set("b", fmt.Sprintf("%02d", sd.Day()))
	q.Set("c", fmt.Sprintf("%d", sd.Year()))
	q.Set("d", fmt.Sprintf("%02d", int(ed.Month())-1))
	q.Set("e", fmt.Sprintf("%02d", ed.Day()))
	q.Set("f", fmt.Sprintf("%d", ed.Year()))
	q.Set("g", freq)
	return base + "?" + q.Encode(), nil
}
