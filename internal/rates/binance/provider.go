package binance

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ccgains/internal/domain"
	"github.com/vadiminshakov/ccgains/pkg/retrier"
	"go.uber.org/zap"
)

const (
	klineInterval     = "1m"
	invalidSymbolCode = -1121
)

var one = decimal.NewFromInt(1)

// KlineSource fetches candles for an exchange symbol.
type KlineSource interface {
	Klines(ctx context.Context, symbol string, start, end time.Time) ([]domain.Kline, error)
}

// ClientSource reads one minute candles from the Binance public API.
type ClientSource struct {
	client *binance.Client
}

// NewClientSource creates a source backed by client. Historical klines need
// no API key.
func NewClientSource(client *binance.Client) *ClientSource {
	return &ClientSource{client: client}
}

// Klines implements KlineSource.
func (s *ClientSource) Klines(ctx context.Context, symbol string, start, end time.Time) ([]domain.Kline, error) {
	klines, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(klineInterval).
		StartTime(start.UnixMilli()).
		EndTime(end.UnixMilli()).
		Limit(2).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Binance for %s", symbol)
	}

	result := make([]domain.Kline, len(klines))
	for i, k := range klines {
		open, err := decimal.NewFromString(k.Open)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse open price at index %d", i)
		}

		result[i] = domain.Kline{
			OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
			CloseTime: time.UnixMilli(k.CloseTime).UTC(),
			Open:      open,
		}
	}

	return result, nil
}

// Provider prices a pair with the open price of the Binance candle containing
// the requested time. Pairs not listed directly are tried the other way round.
type Provider struct {
	source  KlineSource
	retrier *retrier.Retrier
	logger  *zap.Logger
}

// NewProvider creates a provider. A nil retrier uses the retrier defaults.
func NewProvider(source KlineSource, r *retrier.Retrier, logger *zap.Logger) *Provider {
	if r == nil {
		r = retrier.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{source: source, retrier: r, logger: logger}
}

// GetRate implements rates.Provider.
func (p *Provider) GetRate(ctx context.Context, at time.Time, from, to string) (decimal.Decimal, error) {
	pair := domain.NewPair(from, to)
	if pair.From == pair.To {
		return one, nil
	}

	rate, err := p.open(ctx, pair, at)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, domain.ErrNoRate) {
		return decimal.Zero, err
	}

	rate, err = p.open(ctx, pair.Inverse(), at)
	if err != nil {
		return decimal.Zero, err
	}
	return one.Div(rate), nil
}

func (p *Provider) open(ctx context.Context, pair domain.Pair, at time.Time) (decimal.Decimal, error) {
	start := at.Truncate(time.Minute)
	klines, err := retrier.DoWithData(p.retrier, ctx, func(ctx context.Context) ([]domain.Kline, error) {
		klines, err := p.source.Klines(ctx, pair.Symbol(), start, start.Add(time.Minute))
		if err != nil && common.IsAPIError(errors.Cause(err)) {
			return nil, retrier.Permanent(err)
		}
		return klines, err
	})
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == invalidSymbolCode {
			return decimal.Zero, errors.Wrapf(domain.ErrNoRate, "%s is not listed on Binance", pair.Symbol())
		}
		return decimal.Zero, errors.Wrapf(err, "fetch %s rate", pair)
	}

	for _, k := range klines {
		if k.Covers(at) {
			p.logger.Debug("binance rate",
				zap.String("symbol", pair.Symbol()),
				zap.Time("at", at),
				zap.String("open", k.Open.String()))
			return k.Open, nil
		}
	}

	return decimal.Zero, errors.Wrapf(domain.ErrNoRate, "no %s candle at %s", pair.Symbol(), at.Format(time.RFC3339))
}
