package engine

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ccgains/internal/domain"
	"go.uber.org/zap"
)

// ProcessTrade books a trade, deposit or withdrawal. Trades must be fed in
// time order.
//
// A trade paid with the base currency is an acquisition. A trade without a
// sell side is a deposit and one without a buy side is a withdrawal. Anything
// else disposes of the sold currency, adds the short-term gain to the profit
// and, unless the base currency was bought, acquires the bought currency at the
// net proceeds.
func (e *Engine) ProcessTrade(ctx context.Context, t domain.Trade) error {
	return e.apply(ctx, func(tx *txn) error {
		return tx.processTrade(ctx, t)
	})
}

func (tx *txn) processTrade(ctx context.Context, t domain.Trade) error {
	tx.seq = tx.st.trades + 1
	tx.logger.Info("processing trade", zap.Uint64("seq", tx.seq), zap.Stringer("trade", t))

	if err := tx.checkOrder(t.Time); err != nil {
		return err
	}
	if t.BuyAmount.IsNegative() || t.SellAmount.IsNegative() || t.FeeAmount.IsNegative() {
		return domain.NewValidationError(domain.KindNegativeAmount,
			"negative values for buy, sell or fee amount are not supported: %s", t)
	}

	buyCurrency := domain.NormalizeCurrency(t.BuyCurrency)
	sellCurrency := domain.NormalizeCurrency(t.SellCurrency)
	feeCurrency := domain.NormalizeCurrency(t.FeeCurrency)

	var err error
	switch {
	case sellCurrency == tx.st.base && !t.SellAmount.IsZero():
		err = tx.buy(t.Time, t.BuyAmount, buyCurrency, t.SellAmount, t.Exchange)

	case sellCurrency == "" || t.SellAmount.IsZero():
		if t.FeeAmount.IsPositive() && feeCurrency != buyCurrency {
			return domain.NewValidationError(domain.KindUnsupportedFee,
				"fees in %s for a deposit of %s are not supported", feeCurrency, buyCurrency)
		}
		err = tx.deposit(ctx, t.Time, buyCurrency, t.BuyAmount, t.FeeAmount, t.Exchange)

	case buyCurrency == "" || t.BuyAmount.IsZero():
		if t.FeeAmount.IsPositive() && feeCurrency != sellCurrency {
			return domain.NewValidationError(domain.KindUnsupportedFee,
				"fees in %s for a withdrawal of %s are not supported", feeCurrency, sellCurrency)
		}
		err = tx.withdraw(ctx, t.Time, sellCurrency, t.SellAmount, t.FeeAmount, t.Exchange)

	default:
		err = tx.sell(ctx, t, buyCurrency, sellCurrency, feeCurrency)
	}
	if err != nil {
		return err
	}

	tx.st.trades++
	return nil
}

// sell disposes of the sold currency and reinvests the net proceeds.
func (tx *txn) sell(ctx context.Context, t domain.Trade, buyCurrency, sellCurrency, feeCurrency string) error {
	feeShare := decimal.Zero
	if t.FeeAmount.IsPositive() {
		switch feeCurrency {
		case sellCurrency:
			// the fee is included in the sold amount
			feeShare = t.FeeAmount.Div(t.SellAmount)
		case buyCurrency:
			// the fee is not included in the bought amount
			feeShare = t.FeeAmount.Div(t.BuyAmount.Add(t.FeeAmount))
		default:
			return domain.NewValidationError(domain.KindUnsupportedFee,
				"fees in %s are neither in the sold (%s) nor in the bought currency (%s)", feeCurrency, sellCurrency, buyCurrency)
		}
	}

	p, err := tx.pay(ctx, t.Time, sellCurrency, t.SellAmount, t.Exchange, false)
	if err != nil {
		return err
	}

	// The fee's share of the proceeds is lost; its share of the cost stays in
	// ShortTermCost and so counts as a loss.
	net := decimal.NewFromInt(1).Sub(feeShare)
	gain := net.Mul(p.ShortTermProceeds).Sub(p.ShortTermCost)
	tx.st.profit = tx.st.profit.Add(gain)

	tx.logger.Info("realized",
		zap.String("gain", gain.String()),
		zap.String("fee_share", feeShare.Mul(p.ShortTermProceeds).String()),
		zap.String("profit", tx.st.profit.String()),
		zap.String("currency", tx.st.base))

	if buyCurrency == tx.st.base {
		return nil
	}

	return tx.buy(t.Time, t.BuyAmount, buyCurrency, p.TotalProceeds.Mul(net), t.Exchange)
}
