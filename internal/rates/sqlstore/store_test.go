package sqlstore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/ccgains/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func setupTestStore(t *testing.T, maxAge time.Duration) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "rates", "rates.db"), maxAge)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestStore_PutGetRate(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, 0)
	t0 := time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, t0, "btc", "eur", d("2000")))
	require.NoError(t, s.Put(ctx, t0.Add(time.Hour), "BTC", "EUR", d("2100")))
	require.NoError(t, s.Put(ctx, t0.Add(time.Hour), "BTC", "EUR", d("2150.123456789012345678")))
	assert.Error(t, s.Put(ctx, t0, "BTC", "EUR", d("-1")))

	rate, err := s.GetRate(ctx, t0.Add(30*time.Minute), "BTC", "EUR")
	require.NoError(t, err)
	assert.True(t, d("2000").Equal(rate))

	rate, err = s.GetRate(ctx, t0.Add(2*time.Hour), "BTC", "EUR")
	require.NoError(t, err)
	assert.True(t, d("2150.123456789012345678").Equal(rate), "replaced and exact, got %s", rate)

	rate, err = s.GetRate(ctx, t0, "EUR", "BTC")
	require.NoError(t, err)
	assert.True(t, d("0.0005").Equal(rate))

	rate, err = s.GetRate(ctx, t0, "EUR", "eur")
	require.NoError(t, err)
	assert.True(t, d("1").Equal(rate))

	_, err = s.GetRate(ctx, t0.Add(-time.Minute), "BTC", "EUR")
	assert.ErrorIs(t, err, domain.ErrNoRate)
}

func TestStore_MaxAge(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, 24*time.Hour)
	t0 := time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(ctx, t0, "ETH", "EUR", d("200")))

	_, err := s.GetRate(ctx, t0.Add(23*time.Hour), "ETH", "EUR")
	require.NoError(t, err)
	_, err = s.GetRate(ctx, t0.Add(25*time.Hour), "ETH", "EUR")
	assert.ErrorIs(t, err, domain.ErrNoRate)
}

func TestStore_ImportCSV(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, 0)

	n, err := s.ImportCSV(ctx, strings.NewReader(`time,from,to,rate
# daily close
2017-06-01T00:00:00Z,BTC,EUR,2000
2017-06-02T00:00:00+02:00, eth, eur, 201.5
`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rate, err := s.GetRate(ctx, time.Date(2017, 6, 2, 0, 0, 0, 0, time.UTC), "ETH", "EUR")
	require.NoError(t, err)
	assert.True(t, d("201.5").Equal(rate))

	_, err = s.ImportCSV(ctx, strings.NewReader("2017-06-03T00:00:00Z,XMR,EUR,50\nyesterday,BTC,EUR,1\n"))
	require.Error(t, err)
	_, err = s.GetRate(ctx, time.Date(2017, 6, 3, 0, 0, 0, 0, time.UTC), "XMR", "EUR")
	assert.ErrorIs(t, err, domain.ErrNoRate, "nothing is stored from a bad file")
}
