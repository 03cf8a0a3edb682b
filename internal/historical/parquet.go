package historical

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// ParquetSink writes normalized series as monthly parquet files under
// Dir/<symbol>/<symbol>_YYYY-MM.parquet.
type ParquetSink struct {
	Dir    string
	Logger *slog.Logger
}

// WriteSeries writes bars for symbol, one file per calendar month.
func (s *ParquetSink) WriteSeries(ctx context.Context, symbol, currency string, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}

	byMonth := make(map[string][]Bar)
	for _, bar := range bars {
		key := bar.Date.Format("2006-01")
		byMonth[key] = append(byMonth[key], bar)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	dirPath := filepath.Join(s.Dir, symbol)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory structure: %w", err)
	}

	for _, month := range months {
		if err := ctx.Err(); err != nil {
			return err
		}
		filename := filepath.Join(dirPath, fmt.Sprintf("%s_%s.parquet", symbol, month))
		if err := writeBars(filename, symbol, currency, byMonth[month]); err != nil {
			return fmt.Errorf("failed to write parquet file: %w", err)
		}
		s.logger().Debug("wrote parquet", "symbol", symbol, "month", month, "rows", len(byMonth[month]), "file", filename)
	}
	return nil
}

func (s *ParquetSink) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func writeBars(filename, symbol, currency string, bars []Bar) error {
	fw, err := local.NewLocalFileWriter(filename)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(BarPoint), 4)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_GZIP
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.PageSize = 8 * 1024

	for _, bar := range bars {
		point := BarPoint{
			Symbol:      symbol,
			Currency:    currency,
			Date:        bar.Date.Format(DateLayout),
			Year:        int32(bar.Date.Year()),
			Month:       int32(bar.Date.Month()),
			Open:        bar.Open,
			High:        bar.High,
			Low:         bar.Low,
			Close:       bar.Close,
			Volume:      bar.Volume,
			AdjClose:    bar.AdjClose,
			AdjCloseUSD: bar.AdjCloseUSD,
		}
		if err := pw.Write(point); err != nil {
			return fmt.Errorf("failed to write parquet data: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}
