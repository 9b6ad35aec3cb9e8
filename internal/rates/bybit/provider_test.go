package bybit

import (
	"context"
	"testing"
	"time"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/ccgains/internal/domain"
	"github.com/vadiminshakov/ccgains/pkg/retrier"
)

type fakeSource struct {
	klines map[string][]domain.Kline
	errs   map[string]error
	calls  map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		klines: make(map[string][]domain.Kline),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeSource) Klines(_ context.Context, symbol string, start, end time.Time) ([]domain.Kline, error) {
	f.calls[symbol]++
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	var out []domain.Kline
	for _, k := range f.klines[symbol] {
		if !k.CloseTime.Before(start) && !k.OpenTime.After(end) {
			out = append(out, k)
		}
	}
	return out, nil
}

func minuteKline(openTime time.Time, open string) domain.Kline {
	return domain.Kline{
		OpenTime:  openTime,
		CloseTime: openTime.Add(time.Minute - time.Millisecond),
		Open:      decimal.RequireFromString(open),
	}
}

func fastRetrier() *retrier.Retrier {
	return retrier.New(retrier.WithInitialInterval(time.Millisecond), retrier.WithMaxInterval(time.Millisecond), retrier.WithMaxRetries(2))
}

var at = time.Date(2021, 3, 4, 10, 15, 30, 0, time.UTC)

func TestProvider_DirectSymbol(t *testing.T) {
	src := newFakeSource()
	src.klines["BTCEUR"] = []domain.Kline{
		minuteKline(at.Truncate(time.Minute).Add(time.Minute), "41000"),
		minuteKline(at.Truncate(time.Minute), "40500.5"),
	}
	p := NewProvider(src, fastRetrier(), nil)

	rate, err := p.GetRate(context.Background(), at, "btc", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "40500.5", rate.String())
}

func TestProvider_InverseSymbol(t *testing.T) {
	src := newFakeSource()
	src.klines["BTCEUR"] = []domain.Kline{minuteKline(at.Truncate(time.Minute), "40000")}
	p := NewProvider(src, fastRetrier(), nil)

	rate, err := p.GetRate(context.Background(), at, "EUR", "BTC")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.000025")))
	assert.Equal(t, 1, src.calls["EURBTC"])
}

func TestProvider_Identity(t *testing.T) {
	p := NewProvider(newFakeSource(), fastRetrier(), nil)

	rate, err := p.GetRate(context.Background(), at, "eur", "EUR")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestProvider_NoCandle(t *testing.T) {
	p := NewProvider(newFakeSource(), fastRetrier(), nil)

	_, err := p.GetRate(context.Background(), at, "XMR", "EUR")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoRate)
}

func TestProvider_UnknownSymbolIsNotRetried(t *testing.T) {
	src := newFakeSource()
	src.errs["XMREUR"] = classify(errors.New("10001: params error: symbol invalid"))
	src.errs["EURXMR"] = errors.Wrap(ErrUnknownSymbol, "klines")
	p := NewProvider(src, fastRetrier(), nil)

	_, err := p.GetRate(context.Background(), at, "XMR", "EUR")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoRate)
	assert.Equal(t, 1, src.calls["XMREUR"])
	assert.Equal(t, 1, src.calls["EURXMR"])
}

func TestProvider_TransientErrorsAreRetried(t *testing.T) {
	src := newFakeSource()
	src.errs["BTCEUR"] = classify(errors.New("connection reset"))
	p := NewProvider(src, fastRetrier(), nil)

	_, err := p.GetRate(context.Background(), at, "BTC", "EUR")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNoRate)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 3, src.calls["BTCEUR"])
	assert.Zero(t, src.calls["EURBTC"])
}

func TestConvertKlines(t *testing.T) {
	openTime := at.Truncate(time.Minute)
	klines, err := convertKlines([]bybit.V5GetKlineItem{
		{StartTime: "1614852900000", Open: "40500.5", High: "40600", Low: "40400", Close: "40550", Volume: "1.5"},
	})
	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.True(t, klines[0].OpenTime.Equal(openTime))
	assert.True(t, klines[0].Covers(at))
	assert.False(t, klines[0].Covers(openTime.Add(time.Minute)))
	assert.Equal(t, "40500.5", klines[0].Open.String())

	_, err = convertKlines([]bybit.V5GetKlineItem{{StartTime: "soon", Open: "1"}})
	assert.Error(t, err)
	_, err = convertKlines([]bybit.V5GetKlineItem{{StartTime: "1614852900000", Open: "n/a"}})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(errors.New("Not supported symbols")), ErrUnknownSymbol)
	assert.NotErrorIs(t, classify(errors.New("timeout")), ErrUnknownSymbol)
}
