package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sabarim/eodfetch/internal/config"
	"github.com/sabarim/eodfetch/internal/fx"
	"github.com/sabarim/eodfetch/internal/historical"
	"github.com/sabarim/eodfetch/internal/slogx"
	"github.com/sabarim/eodfetch/internal/store"
	"github.com/sabarim/eodfetch/internal/yahoo"
)

var (
	configFile string
	logLevel   string
	version    bool

	symbolsStr   string
	symbolFile   string
	fromDate     string
	toDate       string
	currency     string
	outputDir    string
	workers      int
	maxAttempts  int
	retryDelay   time.Duration
	convertAfter bool

	parquetEnabled bool
	parquetDir     string
	sqlitePath     string

	fields string
)

var versionString = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "eodfetch",
		Short:         "Download end-of-day prices and quote stats, and convert them to USD",
		Long:          `A standalone utility for downloading daily price history and quote statistics from Yahoo-style endpoints and normalizing prices to USD with FRED exchange rates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if version {
				fmt.Fprintf(cmd.OutOrStdout(), "eodfetch version %s\n", versionString)
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&version, "version", false, "Print version information")

	downloadCmd := &cobra.Command{
		Use:   "download [symbols...]",
		Short: "Download daily history for symbols and write annotated CSV files",
		RunE:  runDownload,
	}
	downloadCmd.Flags().StringVar(&symbolsStr, "symbols", "", "Comma-separated list of symbols to download")
	downloadCmd.Flags().StringVar(&symbolFile, "symbol-file", "", "File containing symbols, one per line")
	downloadCmd.Flags().StringVar(&fromDate, "from", "", "Start date (YYYY-MM-DD)")
	downloadCmd.Flags().StringVar(&toDate, "to", "", "End date (YYYY-MM-DD)")
	downloadCmd.Flags().StringVar(&currency, "currency", "", "Trading currency, skips the quote page lookup")
	downloadCmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory for CSV files")
	downloadCmd.Flags().IntVar(&workers, "workers", 0, "Number of symbols downloaded in parallel")
	downloadCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Give up after this many attempts (0 retries forever)")
	downloadCmd.Flags().DurationVar(&retryDelay, "retry-delay", 0, "Wait between retries of transient failures")
	downloadCmd.Flags().BoolVar(&convertAfter, "convert", false, "Convert the downloaded files to USD")
	addExportFlags(downloadCmd)

	convertCmd := &cobra.Command{
		Use:   "convert files...",
		Short: "Add an AdjClose(USD) column to annotated price files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runConvert,
	}
	addExportFlags(convertCmd)

	statsCmd := &cobra.Command{
		Use:   "stats SYMBOL",
		Short: "Print quote statistics for a symbol as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runStats,
	}
	statsCmd.Flags().StringVar(&fields, "fields", "all", "Comma-separated stat names, or all")

	seriesCmd := &cobra.Command{
		Use:   "series SYMBOL",
		Short: "Print a converted series stored in the SQLite database as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runSeries,
	}
	seriesCmd.Flags().StringVar(&sqlitePath, "sqlite", "", "SQLite database written by convert --sqlite")

	rootCmd.AddCommand(downloadCmd, convertCmd, statsCmd, seriesCmd)
	return rootCmd
}

func addExportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&parquetEnabled, "parquet", false, "Also write converted series to Parquet")
	cmd.Flags().StringVar(&parquetDir, "parquet-dir", "", "Output directory for Parquet files")
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "Also upsert converted series into this SQLite database")
}

// loadConfig reads configuration and applies command-line overrides.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return config.Config{}, nil, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if fromDate != "" {
		cfg.Historical.StartDate = fromDate
	}
	if toDate != "" {
		cfg.Historical.EndDate = toDate
	}
	if outputDir != "" {
		cfg.Historical.OutputDir = outputDir
	}
	if workers > 0 {
		cfg.Historical.Workers = workers
	}
	if maxAttempts > 0 {
		cfg.Retry.MaxAttempts = maxAttempts
	}
	if retryDelay > 0 {
		cfg.Retry.Delay = retryDelay
	}
	if parquetEnabled {
		cfg.Export.ParquetEnabled = true
	}
	if parquetDir != "" {
		cfg.Export.ParquetDir = parquetDir
	}
	if sqlitePath != "" {
		cfg.Export.SQLitePath = sqlitePath
	}

	logger := slogx.NewDefault(cfg.Log.Level)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigchan:
			logger.Info("received signal, initiating shutdown", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigchan)
	}()
	return ctx, cancel
}

func newDownloader(cfg config.Config, logger *slog.Logger) *historical.Downloader {
	httpClient := yahoo.NewHTTPClient(yahoo.PoolConfig{Size: cfg.Yahoo.PoolSize, Block: cfg.Yahoo.PoolBlock}, 0)
	client := yahoo.NewClient(
		yahoo.WithHTTPClient(httpClient),
		yahoo.WithEndpoints(yahoo.Endpoints{
			HistoricalCSV: cfg.Yahoo.HistoricalURL,
			HistoricalX:   cfg.Yahoo.HistoricalXURL,
			MainPage:      cfg.Yahoo.MainPageURL,
			Stats:         cfg.Yahoo.StatsURL,
		}),
		yahoo.WithTimeout(cfg.Yahoo.Timeout),
		yahoo.WithUserAgent(cfg.Yahoo.UserAgent),
		yahoo.WithLogger(logger),
	)
	return historical.NewDownloader(client, historical.Config{
		RetryDelay:   cfg.Retry.Delay,
		MaxAttempts:  cfg.Retry.MaxAttempts,
		Timeout:      cfg.Yahoo.Timeout,
		StatsTimeout: cfg.Yahoo.StatsTimeout,
	}, logger)
}

// newConverter wires the FX source and the configured sinks. The returned
// function releases the sinks.
func newConverter(cfg config.Config, fs afero.Fs, logger *slog.Logger) (*fx.Converter, func(), error) {
	from, err := config.ParseDate(cfg.FX.StartDate, time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, nil, err
	}
	to, err := config.ParseDate(cfg.FX.EndDate, time.Now())
	if err != nil {
		return nil, nil, err
	}

	fred := fx.NewFREDClient(cfg.FX.FREDURL, yahoo.NewHTTPClient(yahoo.DefaultPool(), 0), cfg.FX.Timeout)
	rates := fx.NewRates(fred, from, to, logger)

	var sinks []fx.Sink
	closeFn := func() {}
	if cfg.Export.ParquetEnabled {
		sinks = append(sinks, &historical.ParquetSink{Dir: cfg.Export.ParquetDir, Logger: logger})
	}
	if cfg.Export.SQLitePath != "" {
		db, err := store.Open(cfg.Export.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, db)
		closeFn = func() {
			if err := db.Close(); err != nil {
				logger.Error("closing sqlite store", "error", err)
			}
		}
	}
	return fx.NewConverter(fs, rates, logger, sinks...), closeFn, nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	symbols, err := collectSymbols(args, symbolsStr, symbolFile)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return errors.New("no symbols specified, pass them as arguments or use --symbols or --symbol-file")
	}

	start, err := config.ParseDate(cfg.Historical.StartDate, time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return err
	}
	end, err := config.ParseDate(cfg.Historical.EndDate, time.Now())
	if err != nil {
		return err
	}
	opts := historical.Options{
		Range:     yahoo.DateRange{Start: start, End: end},
		Currency:  currency,
		Frequency: cfg.Historical.Frequency,
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	fs := afero.NewOsFs()
	downloader := newDownloader(cfg, logger)
	logger.Info("downloading", "symbols", len(symbols), "workers", cfg.Historical.Workers)

	var (
		mu    sync.Mutex
		paths []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Historical.Workers)
	for _, symbol := range symbols {
		g.Go(func() error {
			res, err := downloader.DownloadSymbol(gctx, symbol, opts)
			if err != nil {
				var nf *historical.DataNotFoundError
				var cnf *historical.CurrencyNotFoundError
				if errors.As(err, &nf) || errors.As(err, &cnf) {
					logger.Warn("skipping symbol", "symbol", symbol, "error", err)
					return nil
				}
				return fmt.Errorf("%s: %w", symbol, err)
			}
			path, err := historical.SaveCSV(fs, cfg.Historical.OutputDir, res)
			if err != nil {
				return err
			}
			logger.Info("saved", "symbol", symbol, "bars", len(res.Bars), "file", path)

			mu.Lock()
			paths = append(paths, path)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if !convertAfter {
		return nil
	}
	return convertPaths(ctx, cmd, cfg, fs, logger, paths)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	ctx, cancel := signalContext(logger)
	defer cancel()
	return convertPaths(ctx, cmd, cfg, afero.NewOsFs(), logger, args)
}

func convertPaths(ctx context.Context, cmd *cobra.Command, cfg config.Config, fs afero.Fs, logger *slog.Logger, paths []string) error {
	conv, closeFn, err := newConverter(cfg, fs, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := conv.ConvertFiles(ctx, paths)
	fmt.Fprintf(cmd.OutOrStdout(), "converted %d of %d files\n", n, len(paths))
	return err
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	ctx, cancel := signalContext(logger)
	defer cancel()

	stats, err := newDownloader(cfg, logger).Stats(ctx, args[0], splitList(fields))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func runSeries(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.Export.SQLitePath == "" {
		return errors.New("no SQLite database configured, use --sqlite or export.sqlite_path")
	}
	ctx, cancel := signalContext(logger)
	defer cancel()

	db, err := store.Open(cfg.Export.SQLitePath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	bars, err := db.Series(ctx, args[0])
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return fmt.Errorf("no stored series for %s", args[0])
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(bars)
}

// collectSymbols merges positional symbols, a comma-separated list and a
// symbol file, dropping blanks and duplicates.
func collectSymbols(args []string, list, file string) ([]string, error) {
	candidates := append([]string{}, args...)
	candidates = append(candidates, splitList(list)...)
	if file != "" {
		content, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return nil, fmt.Errorf("failed to read symbol file: %w", err)
		}
		candidates = append(candidates, strings.Split(string(content), "\n")...)
	}

	seen := make(map[string]bool)
	var symbols []string
	for _, s := range candidates {
		s = strings.TrimSpace(s)
		if s == "" || strings.HasPrefix(s, "#") || seen[s] {
			continue
		}
		seen[s] = true
		symbols = append(symbols, s)
	}
	return symbols, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
