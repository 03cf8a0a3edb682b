package historical

import "time"

// Bar is one end-of-day row.
type Bar struct {
	Date        time.Time `json:"date"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      int64     `json:"volume"`
	AdjClose    float64   `json:"adj_close"`
	AdjCloseUSD float64   `json:"adj_close_usd"` // set only on normalized series
}

// Result is the outcome of DownloadSymbol.
type Result struct {
	Symbol   string
	Currency string
	Bars     []Bar  // provider order, most recent first
	Text     string // annotated CSV as written to disk
}

// barRecord is the decoding shape of a provider or persisted row.
type barRecord struct {
	Date        string  `csv:"Date"`
	Open        float64 `csv:"Open"`
	High        float64 `csv:"High"`
	Low         float64 `csv:"Low"`
	Close       float64 `csv:"Close"`
	Volume      int64   `csv:"Volume"`
	AdjClose    float64 `csv:"AdjClose"`
	AdjCloseUSD float64 `csv:"AdjCloseUSD"`
}

// BarPoint represents a single normalized bar for parquet.
type BarPoint struct {
	Symbol      string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Currency    string  `parquet:"name=currency, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Date        string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Year        int32   `parquet:"name=year, type=INT32, encoding=PLAIN_DICTIONARY"`
	Month       int32   `parquet:"name=month, type=INT32, encoding=PLAIN_DICTIONARY"`
	Open        float64 `parquet:"name=open, type=DOUBLE, encoding=PLAIN"`
	High        float64 `parquet:"name=high, type=DOUBLE, encoding=PLAIN"`
	Low         float64 `parquet:"name=low, type=DOUBLE, encoding=PLAIN"`
	Close       float64 `parquet:"name=close, type=DOUBLE, encoding=PLAIN"`
	Volume      int64   `parquet:"name=volume, type=INT64, encoding=DELTA_BINARY_PACKED"`
	AdjClose    float64 `parquet:"name=adj_close, type=DOUBLE, encoding=PLAIN"`
	AdjCloseUSD float64 `parquet:"name=adj_close_usd, type=DOUBLE, encoding=PLAIN"`
}
