package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/ccgains/config"
	"github.com/vadiminshakov/ccgains/internal/domain"
	"github.com/vadiminshakov/ccgains/internal/engine"
	"github.com/vadiminshakov/ccgains/internal/rates"
	"github.com/vadiminshakov/ccgains/internal/rates/binance"
	"github.com/vadiminshakov/ccgains/internal/rates/bybit"
	"github.com/vadiminshakov/ccgains/internal/storage/journal"
	"github.com/vadiminshakov/ccgains/internal/storage/snapshot"
	"github.com/vadiminshakov/ccgains/internal/tradeio"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const tradesCSV = `kind,dtime,buy_currency,buy_amount,sell_currency,sell_amount,fee_currency,fee_amount,exchange,mark,comment
Trade,2017-01-01 12:00:00,BTC,2,EUR,2000,,,kraken,,
Trade,2017-06-01 12:00:00,EUR,3000,BTC,1,,,Kraken,,
Trade,2017-07-01 12:00:00,EUR,2000,BTC,0.5,,,Kraken,,
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T, dir string) config.Config {
	t.Helper()
	return config.Config{
		BaseCurrency: "EUR",
		TradeFiles:   []string{writeFile(t, dir, "trades.csv", tradesCSV)},
		Timezone:     time.UTC,
		SnapshotPath: filepath.Join(dir, "state", "ccgains.json"),
		JournalDir:   filepath.Join(dir, "journal"),
		HoldingYears: 1,
		Rates: config.RatesConfig{
			SQLitePath: filepath.Join(dir, "rates.db"),
			MaxAge:     24 * time.Hour,
		},
	}
}

func TestRun_StopsOnMissingRateAndResumes(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Rates.ImportCSV = writeFile(t, dir, "rates.csv", "time,from,to,rate\n2017-06-01T00:00:00Z,BTC,EUR,3000\n")

	core, logs := observer.New(zapcore.ErrorLevel)
	err := New(cfg, zap.New(core), &bytes.Buffer{}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsUserFixable(err))
	assert.Equal(t, domain.KindMissingRate, domain.KindOf(err))
	rejected := logs.FilterMessage("trade rejected, state saved").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, string(domain.KindMissingRate), rejected[0].ContextMap()["kind"])

	store, err := snapshot.NewStore(cfg.SnapshotPath)
	require.NoError(t, err)
	data, err := store.Load()
	require.NoError(t, err)
	saved, err := engine.Restore(data, rates.NewTable(0), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), saved.TradesProcessed())
	assert.Equal(t, "2000", saved.Profit().String())

	cfg.Resume = true
	cfg.Rates.ImportCSV = writeFile(t, dir, "rates.csv", "2017-07-01T00:00:00Z,BTC,EUR,4000\n")
	var out bytes.Buffer
	require.NoError(t, New(cfg, nil, &out).Run(context.Background()))

	data, err = store.Load()
	require.NoError(t, err)
	final, err := engine.Restore(data, rates.NewTable(0), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), final.TradesProcessed())
	assert.Equal(t, "3500", final.Profit().String())
	assertDecimal(t, "0.5", final.Balance("Kraken", "BTC"))

	report := out.String()
	assert.Contains(t, report, "3500.00 EUR")
	assert.Contains(t, report, "2017")
	assert.Contains(t, report, "Balances")
	assert.Contains(t, report, "0.50000000")

	j, err := journal.NewWALJournal(cfg.JournalDir)
	require.NoError(t, err)
	defer j.Close()
	trades, err := j.Trades()
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, uint64(3), trades[2].Seq)
	disposals, err := j.Disposals()
	require.NoError(t, err)
	require.Len(t, disposals, 2)
	summary := journal.Summarize(disposals)
	require.Len(t, summary, 1)
	assertDecimal(t, "3500", summary[0].ShortTermGain)
}

func TestRun_RemoteRatesAreCached(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Rates.MaxAge = 0

	remote := rates.NewTable(0)
	require.NoError(t, remote.Put(context.Background(), time.Date(2017, 5, 1, 0, 0, 0, 0, time.UTC), "BTC", "EUR", decimal.NewFromInt(2500)))

	var out bytes.Buffer
	require.NoError(t, New(cfg, nil, &out, WithRemoteRates(remote)).Run(context.Background()))
	assert.Contains(t, report(t, cfg), `"trades_processed": 3`)
	assert.Contains(t, out.String(), "2250.00 EUR")
}

func TestRun_FreshRunIgnoresOldState(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Rates.MaxAge = 0
	cfg.Rates.ImportCSV = writeFile(t, dir, "rates.csv", "2017-06-01T00:00:00Z,BTC,EUR,3000\n")

	require.NoError(t, New(cfg, nil, &bytes.Buffer{}).Run(context.Background()))
	notes := writeFile(t, cfg.JournalDir, "notes.txt", "not a segment")
	require.NoError(t, New(cfg, nil, &bytes.Buffer{}).Run(context.Background()))

	assert.FileExists(t, notes)
	j, err := journal.NewWALJournal(cfg.JournalDir)
	require.NoError(t, err)
	defer j.Close()
	trades, err := j.Trades()
	require.NoError(t, err)
	assert.Len(t, trades, 3)
}

func TestRun_ExportsNormalizedTrades(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Rates.ImportCSV = writeFile(t, dir, "rates.csv", "2017-06-01T00:00:00Z,BTC,EUR,3000\n2017-07-01T00:00:00Z,BTC,EUR,4000\n")
	cfg.Export = filepath.Join(dir, "normalized.csv")

	require.NoError(t, New(cfg, nil, &bytes.Buffer{}).Run(context.Background()))

	f, err := os.Open(cfg.Export)
	require.NoError(t, err)
	defer f.Close()
	exported, err := tradeio.ReadCSV(f, time.UTC)
	require.NoError(t, err)
	require.Len(t, exported, 3)
	assert.Equal(t, "Kraken", exported[0].Exchange)
	assert.Equal(t, "BTC", exported[0].BuyCurrency)
	assert.True(t, exported[0].Time.Equal(time.Date(2017, 1, 1, 12, 0, 0, 0, time.UTC)))
	assertDecimal(t, "0.5", exported[2].SellAmount)
}

func TestApp_ExchangeRates(t *testing.T) {
	cfg := config.Config{}
	assert.Nil(t, New(cfg, nil, &bytes.Buffer{}).exchangeRates())

	cfg.Rates.Bybit = true
	assert.IsType(t, &bybit.Provider{}, New(cfg, nil, &bytes.Buffer{}).exchangeRates())

	cfg.Rates.Binance = true
	chain, ok := New(cfg, nil, &bytes.Buffer{}).exchangeRates().(rates.Chain)
	require.True(t, ok)
	require.Len(t, chain, 2)
	assert.IsType(t, &binance.Provider{}, chain[0])
	assert.IsType(t, &bybit.Provider{}, chain[1])
}

func TestRun_ImportNeedsStore(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Rates.SQLitePath = ""
	cfg.Rates.ImportCSV = writeFile(t, dir, "rates.csv", "2017-06-01T00:00:00Z,BTC,EUR,3000\n")

	assert.Error(t, New(cfg, nil, &bytes.Buffer{}).Run(context.Background()))
}

func report(t *testing.T, cfg config.Config) string {
	t.Helper()
	data, err := os.ReadFile(cfg.SnapshotPath)
	require.NoError(t, err)
	return string(data)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}
