package historical

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/sabarim/eodfetch/internal/yahoo"
)

// Fetcher performs a single provider request.
type Fetcher interface {
	Fetch(ctx context.Context, req yahoo.Request) (string, error)
}

// Config tunes a Downloader.
type Config struct {
	RetryDelay   time.Duration // fixed wait between transient failures
	MaxAttempts  int           // 0 retries forever
	Timeout      time.Duration // per attempt, historical and main page
	StatsTimeout time.Duration // per attempt, stats
}

// DefaultConfig returns the stock retry and timeout settings.
func DefaultConfig() Config {
	return Config{
		RetryDelay:   5 * time.Second,
		Timeout:      600 * time.Second,
		StatsTimeout: 60 * time.Second,
	}
}

// Options selects what DownloadSymbol fetches.
type Options struct {
	Range     yahoo.DateRange // zero value means 1900-01-01 through today
	Currency  string          // skips the quote page lookup when set
	Frequency string
}

// Downloader wraps a Fetcher with retry classification.
type Downloader struct {
	fetcher Fetcher
	config  Config
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// NewDownloader creates a new downloader
func NewDownloader(fetcher Fetcher, config Config, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		fetcher: fetcher,
		config:  config,
		logger:  logger,
		sleep:   sleepContext,
		now:     time.Now,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Download fetches req, retrying server and connection faults after a fixed
// delay. Not-found and fatal errors are returned on the first occurrence.
func (d *Downloader) Download(ctx context.Context, req yahoo.Request) (string, error) {
	for attempt := 1; ; attempt++ {
		body, err := d.fetcher.Fetch(ctx, req)
		if err == nil {
			return body, nil
		}

		var fe *yahoo.FetchError
		if !errors.As(err, &fe) || !fe.Kind.Transient() {
			return "", err
		}
		if d.config.MaxAttempts > 0 && attempt >= d.config.MaxAttempts {
			return "", &RetriesExhaustedError{Attempts: attempt, Err: err}
		}

		d.logger.Debug("transient failure, retrying",
			"endpoint", req.Kind.String(),
			"symbol", req.Symbol,
			"attempt", attempt,
			"kind", fe.Kind.String(),
			"delay", d.config.RetryDelay,
			"error", err)

		if err := d.sleep(ctx, d.config.RetryDelay); err != nil {
			return "", err
		}
	}
}

// DownloadSymbol fetches the daily CSV history of symbol and annotates it
// with the symbol's trading currency. The quote page is only requested once
// the payload has parsed.
func (d *Downloader) DownloadSymbol(ctx context.Context, symbol string, opts Options) (Result, error) {
	r := opts.Range
	if r.Start.IsZero() && r.End.IsZero() {
		r = yahoo.DateRange{
			Start: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   d.now(),
		}
	}

	payload, err := d.Download(ctx, yahoo.Request{
		Kind:      yahoo.EndpointHistorical,
		Symbol:    symbol,
		Range:     r,
		Frequency: opts.Frequency,
		Format:    yahoo.FormatCSV,
		Timeout:   d.config.Timeout,
	})
	if err != nil {
		if isNotFound(err) {
			return Result{}, &DataNotFoundError{Symbol: symbol}
		}
		return Result{}, err
	}

	bars, err := ParseBars(payload)
	if err != nil {
		return Result{}, &InvalidDataError{Symbol: symbol, Err: err}
	}

	currency := strings.ToUpper(opts.Currency)
	if currency == "" {
		currency, err = d.currency(ctx, symbol)
		if err != nil {
			return Result{}, err
		}
	}

	d.logger.Info("downloaded", "symbol", symbol, "currency", currency, "bars", len(bars))

	return Result{
		Symbol:   symbol,
		Currency: currency,
		Bars:     bars,
		Text:     Annotate(payload, currency),
	}, nil
}

func (d *Downloader) currency(ctx context.Context, symbol string) (string, error) {
	page, err := d.Download(ctx, yahoo.Request{
		Kind:    yahoo.EndpointMainPage,
		Symbol:  symbol,
		Timeout: d.config.Timeout,
	})
	if err != nil {
		if isNotFound(err) {
			return "", &CurrencyNotFoundError{Symbol: symbol}
		}
		return "", err
	}
	currency := ResolveCurrency(page)
	if currency == "" {
		return "", &CurrencyNotFoundError{Symbol: symbol}
	}
	return currency, nil
}

// Stats fetches the named quote statistics for symbol. The name "all"
// requests the whole table.
func (d *Downloader) Stats(ctx context.Context, symbol string, names []string) (map[string]yahoo.StatValue, error) {
	names = yahoo.ExpandStats(names)
	codes, err := yahoo.FieldCodes(names)
	if err != nil {
		return nil, err
	}

	line, err := d.Download(ctx, yahoo.Request{
		Kind:    yahoo.EndpointStats,
		Symbol:  symbol,
		Fields:  codes,
		Timeout: d.config.StatsTimeout,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, &DataNotFoundError{Symbol: symbol}
		}
		return nil, err
	}

	stats, err := yahoo.ParseStats(names, line)
	if err != nil {
		return nil, fmt.Errorf("stats for %s: %w", symbol, err)
	}
	return stats, nil
}

func isNotFound(err error) bool {
	var fe *yahoo.FetchError
	return errors.As(err, &fe) && fe.Kind == yahoo.KindNotFound
}

// SaveCSV writes the annotated payload to dir/<symbol>.csv and returns the path.
func SaveCSV(fs afero.Fs, dir string, res Result) (string, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	filename := filepath.Join(dir, res.Symbol+".csv")
	if err := afero.WriteFile(fs, filename, []byte(res.Text), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return filename, nil
}
