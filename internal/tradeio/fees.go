package tradeio

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ccgains/internal/domain"
	"go.uber.org/zap"
)

type pendingWithdrawal struct {
	index int
	net   decimal.Decimal
}

// FillMissingFees sets the fee of withdrawals whose exports left it out.
//
// Each deposit is matched with the earliest unmatched withdrawal of the same
// currency before it. When the withdrawn amount minus its fee exceeds the
// deposit, the difference is added to the withdrawal fee. A deposit larger
// than the withdrawal cannot match: in strict mode this is an error, otherwise
// the withdrawal is skipped with a warning and the next one is tried.
//
// trades must be sorted by time. The returned slice is a copy.
func FillMissingFees(trades []domain.Trade, strict bool, logger *zap.Logger) ([]domain.Trade, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	out := make([]domain.Trade, len(trades))
	copy(out, trades)

	var pending []pendingWithdrawal
	for i, t := range out {
		switch {
		case t.IsWithdrawal() && t.SellAmount.IsPositive():
			if t.FeeAmount.IsPositive() && t.FeeCurrency != t.SellCurrency {
				return nil, errors.Errorf("withdrawal %d pays its fee in %s instead of %s", i, t.FeeCurrency, t.SellCurrency)
			}
			pending = append(pending, pendingWithdrawal{index: i, net: t.SellAmount.Sub(t.FeeAmount)})

		case t.IsDeposit() && t.BuyAmount.IsPositive():
			for k := 0; k < len(pending); k++ {
				w := &out[pending[k].index]
				if w.SellCurrency != t.BuyCurrency {
					continue
				}
				if pending[k].net.LessThan(t.BuyAmount) {
					if strict {
						return nil, errors.Errorf("withdrawal at %s of %s %s is lower than the deposit at %s of %s %s following it",
							w.Time, pending[k].net, w.SellCurrency, t.Time, t.BuyAmount, t.BuyCurrency)
					}
					logger.Warn("withdrawal is lower than the following deposit, trying the next withdrawal",
						zap.Time("withdrawal", w.Time),
						zap.String("withdrawn", pending[k].net.String()),
						zap.Time("deposit", t.Time),
						zap.String("deposited", t.BuyAmount.String()),
						zap.String("currency", t.BuyCurrency))
					continue
				}

				if missing := pending[k].net.Sub(t.BuyAmount); missing.IsPositive() {
					w.FeeCurrency = w.SellCurrency
					w.FeeAmount = w.FeeAmount.Add(missing)
					logger.Info("amended withdrawal fee", zap.Stringer("withdrawal", w))
				}
				pending = append(pending[:k], pending[k+1:]...)
				break
			}
		}
	}

	if len(pending) > 0 {
		feeless := 0
		for _, w := range pending {
			if out[w.index].FeeAmount.IsZero() {
				feeless++
			}
		}
		logger.Warn("withdrawals could not be matched with deposits",
			zap.Int("unmatched", len(pending)),
			zap.Int("without_fee", feeless))
	}

	return out, nil
}
