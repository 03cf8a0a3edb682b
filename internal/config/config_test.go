package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Retry.Delay)
	assert.Zero(t, cfg.Retry.MaxAttempts)
	assert.Equal(t, 600*time.Second, cfg.Yahoo.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Yahoo.StatsTimeout)
	assert.Equal(t, 10, cfg.Yahoo.PoolSize)
	assert.Equal(t, "1900-01-01", cfg.Historical.StartDate)
	assert.Equal(t, "d", cfg.Historical.Frequency)
	assert.Equal(t, 1, cfg.Historical.Workers)
	assert.Equal(t, "https://fred.stlouisfed.org/graph/fredgraph.csv", cfg.FX.FREDURL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
yahoo:
  pool_size: 4
  pool_block: true
retry:
  delay: 250ms
  max_attempts: 7
historical:
  output_dir: /tmp/eod
  workers: 3
export:
  sqlite_path: /tmp/eod/bars.db
log:
  level: debug
`), 0644))

	t.Setenv("EODFETCH_HISTORICAL_OUTPUT_DIR", "/srv/eod")
	t.Setenv("EODFETCH_FX_START_DATE", "2000-01-01")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Yahoo.PoolSize)
	assert.True(t, cfg.Yahoo.PoolBlock)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, "/srv/eod", cfg.Historical.OutputDir)
	assert.Equal(t, 3, cfg.Historical.Workers)
	assert.Equal(t, "2000-01-01", cfg.FX.StartDate)
	assert.Equal(t, "/tmp/eod/bars.db", cfg.Export.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("yahoo: [unclosed\n"), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestParseDate(t *testing.T) {
	fallback := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := ParseDate("", fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, got)

	got, err = ParseDate("2015-03-07", fallback)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2015, 3, 7, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDate("07/03/2015", fallback)
	require.Error(t, err)
}
