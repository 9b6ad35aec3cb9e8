package bybit

import (
	"context"
	"strconv"
	"strings"
	"time"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ccgains/internal/domain"
	"github.com/vadiminshakov/ccgains/pkg/retrier"
	"go.uber.org/zap"
)

const klineInterval = "1"

var one = decimal.NewFromInt(1)

// ErrUnknownSymbol is returned by a source for a symbol Bybit doesn't list.
var ErrUnknownSymbol = errors.New("symbol not listed on Bybit")

// KlineSource fetches candles for an exchange symbol.
type KlineSource interface {
	Klines(ctx context.Context, symbol string, start, end time.Time) ([]domain.Kline, error)
}

// ClientSource reads one minute spot candles from the Bybit v5 public API.
type ClientSource struct {
	client *bybit.Client
}

// NewClientSource creates a source backed by client.
func NewClientSource(client *bybit.Client) *ClientSource {
	return &ClientSource{client: client}
}

// Klines implements KlineSource. The client takes no context, ctx is only
// checked before the request.
func (s *ClientSource) Klines(ctx context.Context, symbol string, start, end time.Time) ([]domain.Kline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	startMs, endMs := start.UnixMilli(), end.UnixMilli()
	limit := 2
	result, err := s.client.V5().Market().GetKline(bybit.V5GetKlineParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   bybit.SymbolV5(symbol),
		Interval: bybit.Interval(klineInterval),
		Start:    &startMs,
		End:      &endMs,
		Limit:    &limit,
	})
	if err != nil {
		return nil, classify(errors.Wrapf(err, "failed to fetch klines from Bybit for %s", symbol))
	}
	if result == nil {
		return nil, errors.Errorf("empty result from Bybit API for %s", symbol)
	}

	return convertKlines(result.Result.List)
}

// classify marks errors about the symbol itself (retCode 10001) as
// ErrUnknownSymbol.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "symbol") {
		return errors.Wrap(ErrUnknownSymbol, err.Error())
	}
	return err
}

func convertKlines(items []bybit.V5GetKlineItem) ([]domain.Kline, error) {
	klines := make([]domain.Kline, len(items))
	for i, k := range items {
		openTime, err := parseTimestamp(k.StartTime)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse start time at index %d", i)
		}
		open, err := decimal.NewFromString(k.Open)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse open price at index %d", i)
		}

		klines[i] = domain.Kline{
			OpenTime:  openTime,
			CloseTime: openTime.Add(time.Minute - time.Millisecond),
			Open:      open,
		}
	}
	return klines, nil
}

// parseTimestamp converts a Bybit millisecond timestamp string to time.Time.
func parseTimestamp(ts string) (time.Time, error) {
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", ts)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Provider prices a pair with the open price of the Bybit spot candle
// containing the requested time. Pairs not listed directly are tried the
// other way round.
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
		if errors.Is(err, ErrUnknownSymbol) {
			return nil, retrier.Permanent(err)
		}
		return klines, err
	})
	if err != nil {
		if errors.Is(err, ErrUnknownSymbol) {
			return decimal.Zero, errors.Wrapf(domain.ErrNoRate, "%s is not listed on Bybit", pair.Symbol())
		}
		return decimal.Zero, errors.Wrapf(err, "fetch %s rate", pair)
	}

	for _, k := range klines {
		if k.Covers(at) {
			p.logger.Debug("bybit rate",
				zap.String("symbol", pair.Symbol()),
				zap.Time("at", at),
				zap.String("open", k.Open.String()))
			return k.Open, nil
		}
	}

	return decimal.Zero, errors.Wrapf(domain.ErrNoRate, "no %s candle at %s", pair.Symbol(), at.Format(time.RFC3339))
}
