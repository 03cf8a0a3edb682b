package historical

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabarim/eodfetch/internal/yahoo"
)

type reply struct {
	body string
	err  error
}

// scriptedFetcher answers requests per endpoint from a queue; the last reply repeats.
type scriptedFetcher struct {
	replies map[yahoo.Endpoint][]reply
	calls   map[yahoo.Endpoint]int
	reqs    []yahoo.Request
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		replies: make(map[yahoo.Endpoint][]reply),
		calls:   make(map[yahoo.Endpoint]int),
	}
}

func (f *scriptedFetcher) on(kind yahoo.Endpoint, replies ...reply) *scriptedFetcher {
	f.replies[kind] = replies
	return f
}

func (f *scriptedFetcher) Fetch(_ context.Context, req yahoo.Request) (string, error) {
	f.reqs = append(f.reqs, req)
	queue := f.replies[req.Kind]
	i := f.calls[req.Kind]
	f.calls[req.Kind]++
	if len(queue) == 0 {
		return "", errors.New("unexpected request")
	}
	if i >= len(queue) {
		i = len(queue) - 1
	}
	return queue[i].body, queue[i].err
}

func fetchErr(kind yahoo.Kind, endpoint yahoo.Endpoint) error {
	return &yahoo.FetchError{Kind: kind, Endpoint: endpoint, Symbol: "7203.T", Err: errors.New("boom")}
}

func newTestDownloader(f Fetcher, cfg Config) (*Downloader, *[]time.Duration) {
	d := NewDownloader(f, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var slept []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}
	d.now = func() time.Time { return time.Date(2020, 6, 30, 0, 0, 0, 0, time.UTC) }
	return d, &slept
}

const payload = "Date,Open,High,Low,Close,Volume,Adj Close\n" +
	"2020-01-03,101,102,100,101.5,2000,10010\n" +
	"2020-01-02,100,101,99,100.5,1000,10000\n"

func TestDownload_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	// Arrange: three transient failures of mixed kinds, then the payload.
	f := newScriptedFetcher().on(yahoo.EndpointHistorical,
		reply{err: fetchErr(yahoo.KindServerTransient, yahoo.EndpointHistorical)},
		reply{err: fetchErr(yahoo.KindConnTransient, yahoo.EndpointHistorical)},
		reply{err: fetchErr(yahoo.KindServerTransient, yahoo.EndpointHistorical)},
		reply{body: payload},
	)
	d, slept := newTestDownloader(f, DefaultConfig())

	// Act
	body, err := d.Download(t.Context(), yahoo.Request{Kind: yahoo.EndpointHistorical, Symbol: "7203.T"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, payload, body)
	assert.Equal(t, 4, f.calls[yahoo.EndpointHistorical])
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, *slept)
}

func TestDownload_NotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	f := newScriptedFetcher().on(yahoo.EndpointHistorical,
		reply{err: fetchErr(yahoo.KindNotFound, yahoo.EndpointHistorical)},
	)
	d, slept := newTestDownloader(f, DefaultConfig())

	_, err := d.Download(t.Context(), yahoo.Request{Kind: yahoo.EndpointHistorical, Symbol: "7203.T"})

	require.Error(t, err)
	assert.Equal(t, 1, f.calls[yahoo.EndpointHistorical])
	assert.Empty(t, *slept)
}

func TestDownload_FatalIsNotRetried(t *testing.T) {
	t.Parallel()

	f := newScriptedFetcher().on(yahoo.EndpointHistorical,
		reply{err: fetchErr(yahoo.KindFatal, yahoo.EndpointHistorical)},
	)
	d, _ := newTestDownloader(f, DefaultConfig())

	_, err := d.Download(t.Context(), yahoo.Request{Kind: yahoo.EndpointHistorical, Symbol: "7203.T"})

	var fe *yahoo.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, yahoo.KindFatal, fe.Kind)
	assert.Equal(t, 1, f.calls[yahoo.EndpointHistorical])
}

func TestDownload_MaxAttempts(t *testing.T) {
	t.Parallel()

	f := newScriptedFetcher().on(yahoo.EndpointHistorical,
		reply{err: fetchErr(yahoo.KindConnTransient, yahoo.EndpointHistorical)},
	)
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	d, slept := newTestDownloader(f, cfg)

	_, err := d.Download(t.Context(), yahoo.Request{Kind: yahoo.EndpointHistorical, Symbol: "7203.T"})

	var rex *RetriesExhaustedError
	require.ErrorAs(t, err, &rex)
	assert.Equal(t, 3, rex.Attempts)
	assert.Equal(t, 3, f.calls[yahoo.EndpointHistorical])
	assert.Len(t, *slept, 2)
}

func TestDownload_CancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	f := newScriptedFetcher().on(yahoo.EndpointHistorical,
		reply{err: fetchErr(yahoo.KindServerTransient, yahoo.EndpointHistorical)},
	)
	d := NewDownloader(f, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := d.Download(ctx, yahoo.Request{Kind: yahoo.EndpointHistorical, Symbol: "7203.T"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.calls[yahoo.EndpointHistorical])
}

func TestDownloadSymbol_ScrapesCurrency(t *testing.T) {
	t.Parallel()

	f := newScriptedFetcher().
		on(yahoo.EndpointHistorical, reply{body: payload}).
		on(yahoo.EndpointMainPage,
			reply{err: fetchErr(yahoo.KindServerTransient, yahoo.EndpointMainPage)},
			reply{body: "<span>Currency in jpy.</span>"})
	d, _ := newTestDownloader(f, DefaultConfig())

	res, err := d.DownloadSymbol(t.Context(), "7203.T", Options{})

	require.NoError(t, err)
	assert.Equal(t, "JPY", res.Currency)
	assert.Len(t, res.Bars, 2)
	assert.Equal(t, 10010.0, res.Bars[0].AdjClose)
	header, _ := SplitHeader(res.Text)
	assert.Equal(t, "Date,Open,High,Low,Close,Volume,AdjClose(JPY)", header)
	assert.Equal(t, 2, f.calls[yahoo.EndpointMainPage])

	// Default window runs from 1900-01-01 to today.
	hist := f.reqs[0]
	assert.Equal(t, 1900, hist.Range.Start.Year())
	assert.Equal(t, 2020, hist.Range.End.Year())
	assert.Equal(t, 600*time.Second, hist.Timeout)
	assert.Equal(t, yahoo.FormatCSV, hist.Format)
}

func TestDownloadSymbol_CurrencyOverride(t *testing.T) {
	t.Parallel()

	f := newScriptedFetcher().on(yahoo.EndpointHistorical, reply{body: payload})
	d, _ := newTestDownloader(f, DefaultConfig())

	res, err := d.DownloadSymbol(t.Context(), "7203.T", Options{Currency: "eur"})

	require.NoError(t, err)
	assert.Equal(t, "EUR", res.Currency)
	assert.Zero(t, f.calls[yahoo.EndpointMainPage])
}

func TestDownloadSymbol_Errors(t *testing.T) {
	t.Parallel()

	t.Run("history not found", func(t *testing.T) {
		t.Parallel()
		f := newScriptedFetcher().on(yahoo.EndpointHistorical,
			reply{err: fetchErr(yahoo.KindNotFound, yahoo.EndpointHistorical)})
		d, _ := newTestDownloader(f, DefaultConfig())

		_, err := d.DownloadSymbol(t.Context(), "NOPE", Options{})
		var nf *DataNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "NOPE", nf.Symbol)
	})

	t.Run("page without currency", func(t *testing.T) {
		t.Parallel()
		f := newScriptedFetcher().
			on(yahoo.EndpointHistorical, reply{body: payload}).
			on(yahoo.EndpointMainPage, reply{body: "<html>nothing here</html>"})
		d, slept := newTestDownloader(f, DefaultConfig())

		_, err := d.DownloadSymbol(t.Context(), "7203.T", Options{})
		var cnf *CurrencyNotFoundError
		require.ErrorAs(t, err, &cnf)
		assert.Equal(t, 1, f.calls[yahoo.EndpointMainPage])
		assert.Empty(t, *slept)
	})

	t.Run("main page not found", func(t *testing.T) {
		t.Parallel()
		f := newScriptedFetcher().
			on(yahoo.EndpointHistorical, reply{body: payload}).
			on(yahoo.EndpointMainPage, reply{err: fetchErr(yahoo.KindNotFound, yahoo.EndpointMainPage)})
		d, _ := newTestDownloader(f, DefaultConfig())

		_, err := d.DownloadSymbol(t.Context(), "7203.T", Options{})
		var cnf *CurrencyNotFoundError
		require.ErrorAs(t, err, &cnf)
	})

	t.Run("malformed payload skips quote page", func(t *testing.T) {
		t.Parallel()
		f := newScriptedFetcher().
			on(yahoo.EndpointHistorical, reply{body: "<html>oops</html>"}).
			on(yahoo.EndpointMainPage, reply{err: fetchErr(yahoo.KindServerTransient, yahoo.EndpointMainPage)})
		d, slept := newTestDownloader(f, DefaultConfig())

		_, err := d.DownloadSymbol(t.Context(), "7203.T", Options{})
		var ide *InvalidDataError
		require.ErrorAs(t, err, &ide)
		assert.Zero(t, f.calls[yahoo.EndpointMainPage])
		assert.Empty(t, *slept)
	})

	t.Run("malformed payload", func(t *testing.T) {
		t.Parallel()
		f := newScriptedFetcher().on(yahoo.EndpointHistorical, reply{body: "<html>oops</html>"})
		d, _ := newTestDownloader(f, DefaultConfig())

		_, err := d.DownloadSymbol(t.Context(), "7203.T", Options{Currency: "JPY"})
		var ide *InvalidDataError
		require.ErrorAs(t, err, &ide)
	})
}

func TestStats(t *testing.T) {
	t.Parallel()

	f := newScriptedFetcher().on(yahoo.EndpointStats, reply{body: "112.5,615.3B\r\n"})
	d, _ := newTestDownloader(f, DefaultConfig())

	stats, err := d.Stats(t.Context(), "AAPL", []string{"price", "market_cap"})

	require.NoError(t, err)
	assert.InDelta(t, 112.5, stats["price"].Number, 1e-9)
	assert.InDelta(t, 615.3e9, stats["market_cap"].Number, 1)
	assert.Equal(t, "l1j1", f.reqs[0].Fields)
	assert.Equal(t, 60*time.Second, f.reqs[0].Timeout)
}

func TestStats_UnknownName(t *testing.T) {
	t.Parallel()

	f := newScriptedFetcher()
	d, _ := newTestDownloader(f, DefaultConfig())

	_, err := d.Stats(t.Context(), "AAPL", []string{"price", "horoscope"})

	var use *yahoo.UnknownStatError
	require.ErrorAs(t, err, &use)
	assert.Empty(t, f.reqs)
}

func TestSaveCSV(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	res := Result{Symbol: "7203.T", Currency: "JPY", Text: Annotate(payload, "JPY")}

	path, err := SaveCSV(fs, "/data", res)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "7203.T.csv"), path)
	got, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, res.Text, string(got))
}
