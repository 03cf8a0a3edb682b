package fx

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"github.com/sabarim/eodfetch/internal/historical"
	"github.com/sabarim/eodfetch/internal/slogx"
)

// Sink receives every normalized series after its file is rewritten.
type Sink interface {
	WriteSeries(ctx context.Context, symbol, currency string, bars []historical.Bar) error
}

// Converter rewrites annotated price files with an AdjClose(USD) column.
type Converter struct {
	fs     afero.Fs
	rates  *Rates
	sinks  []Sink
	logger *slog.Logger
}

// NewConverter creates a converter over fs.
func NewConverter(fs afero.Fs, rates *Rates, logger *slog.Logger, sinks ...Sink) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{fs: fs, rates: rates, sinks: sinks, logger: logger}
}

// ConvertFiles converts each file in paths and returns how many were
// rewritten. Files already in USD are left alone; unreadable or unannotated
// files are logged and skipped. An FX failure stops the batch.
func (c *Converter) ConvertFiles(ctx context.Context, paths []string) (int, error) {
	converted := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return converted, err
		}
		ok, err := c.convertFile(ctx, path)
		if ok {
			converted++
		}
		if err != nil {
			return converted, err
		}
	}
	return converted, nil
}

func (c *Converter) convertFile(ctx context.Context, path string) (bool, error) {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		c.logger.Error("reading file", "file", path, "error", err)
		return false, nil
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	header, _ := historical.SplitHeader(text)
	header = strings.TrimSpace(header)
	if historical.IsNormalized(header) {
		c.logger.Debug("already in USD", "file", path)
		return false, nil
	}

	currency := historical.HeaderCurrency(header)
	if currency == "" {
		c.logger.Error("file has no currency specification", "file", path)
		return false, nil
	}

	rows, err := historical.ParseRows(text)
	if err != nil {
		c.logger.Error("parsing file", "file", path, "error", err)
		return false, nil
	}

	c.logger.Debug("converting to USD", "file", path, "currency", currency)
	rates, err := c.rates.Resolve(ctx, currency)
	if err != nil {
		return false, err
	}

	type converted struct {
		row historical.Row
		usd float64
	}
	kept := make([]converted, 0, len(rows))
	for _, row := range rows {
		usd, ok := ToUSD(row.Date, row.AdjClose, rates)
		if !ok {
			c.logger.Log(ctx, slogx.LevelTrace, "no FX rate, removing row", "file", path, "line", row.Line)
			continue
		}
		kept = append(kept, converted{row: row, usd: usd})
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].row.Date.Before(kept[j].row.Date)
	})

	var b strings.Builder
	b.WriteString(header + ",AdjClose(USD)\n")
	for _, k := range kept {
		b.WriteString(k.row.Line)
		b.WriteByte(',')
		b.WriteString(decimal.NewFromFloat(k.usd).String())
		b.WriteByte('\n')
	}
	if err := afero.WriteFile(c.fs, path, []byte(b.String()), 0644); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	c.logger.Info("converted", "file", path, "currency", currency, "rows", len(kept), "dropped", len(rows)-len(kept))

	if len(c.sinks) == 0 {
		return true, nil
	}
	bars, err := historical.ParseBars(text)
	if err != nil {
		c.logger.Warn("file converted but not exported", "file", path, "error", err)
		return true, nil
	}
	out := Normalize(bars, rates)

	symbol := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, sink := range c.sinks {
		if err := sink.WriteSeries(ctx, symbol, currency, out); err != nil {
			return true, fmt.Errorf("exporting %s: %w", symbol, err)
		}
	}
	return true, nil
}
