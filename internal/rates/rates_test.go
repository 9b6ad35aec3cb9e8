package rates

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetRate(ctx context.Context, at time.Time, from, to string) (decimal.Decimal, error) {
	args := m.Called(ctx, at, from, to)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func TestTable_GetRate(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC)
	table := NewTable(0)

	require.NoError(t, table.Put(ctx, t0.Add(2*time.Hour), "btc", "eur", d("2200")))
	require.NoError(t, table.Put(ctx, t0, "BTC", "EUR", d("2000")))
	require.NoError(t, table.Put(ctx, t0.Add(time.Hour), "BTC", "EUR", d("2100")))
	assert.Error(t, table.Put(ctx, t0, "BTC", "EUR", d("0")))

	tests := []struct {
		name     string
		at       time.Time
		from, to string
		want     string
		noRate   bool
	}{
		{name: "exact", at: t0, from: "BTC", to: "EUR", want: "2000"},
		{name: "between points", at: t0.Add(90 * time.Minute), from: "BTC", to: "EUR", want: "2100"},
		{name: "after last", at: t0.Add(48 * time.Hour), from: "BTC", to: "EUR", want: "2200"},
		{name: "before first", at: t0.Add(-time.Second), from: "BTC", to: "EUR", noRate: true},
		{name: "inverse", at: t0, from: "EUR", to: "BTC", want: "0.0005"},
		{name: "identity", at: t0, from: "eur", to: "EUR", want: "1"},
		{name: "unknown pair", at: t0, from: "ETH", to: "EUR", noRate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, err := table.GetRate(ctx, tt.at, tt.from, tt.to)
			if tt.noRate {
				assert.ErrorIs(t, err, ErrNoRate)
				return
			}
			require.NoError(t, err)
			assert.True(t, d(tt.want).Equal(rate), "got %s", rate)
		})
	}
}

func TestTable_MaxAge(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC)
	table := NewTable(time.Hour)
	require.NoError(t, table.Put(ctx, t0, "BTC", "EUR", d("2000")))

	_, err := table.GetRate(ctx, t0.Add(time.Hour), "BTC", "EUR")
	require.NoError(t, err)
	_, err = table.GetRate(ctx, t0.Add(time.Hour+time.Second), "BTC", "EUR")
	assert.ErrorIs(t, err, ErrNoRate)
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC)
	first := NewTable(0)
	second := NewTable(0)
	require.NoError(t, second.Put(ctx, t0, "ETH", "EUR", d("200")))

	rate, err := Chain{first, second}.GetRate(ctx, t0, "ETH", "EUR")
	require.NoError(t, err)
	assert.True(t, d("200").Equal(rate))

	_, err = Chain{first, second}.GetRate(ctx, t0, "XMR", "EUR")
	assert.ErrorIs(t, err, ErrNoRate)

	failing := &mockProvider{}
	failing.On("GetRate", mock.Anything, t0, "ETH", "EUR").Return(decimal.Zero, errors.New("timeout"))
	_, err = Chain{failing, second}.GetRate(ctx, t0, "ETH", "EUR")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoRate)
	failing.AssertExpectations(t)
}

func TestCaching(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC)
	store := NewTable(time.Minute)
	remote := &mockProvider{}
	remote.On("GetRate", mock.Anything, t0, "BTC", "EUR").Return(d("2500"), nil).Once()

	c := NewCaching(store, remote, nil)
	for i := 0; i < 3; i++ {
		rate, err := c.GetRate(ctx, t0, "BTC", "EUR")
		require.NoError(t, err)
		assert.True(t, d("2500").Equal(rate))
	}
	remote.AssertNumberOfCalls(t, "GetRate", 1)

	remote.On("GetRate", mock.Anything, t0, "XMR", "EUR").Return(decimal.Zero, errors.Wrap(ErrNoRate, "XMR_EUR")).Once()
	_, err := c.GetRate(ctx, t0, "XMR", "EUR")
	assert.ErrorIs(t, err, ErrNoRate)
}
