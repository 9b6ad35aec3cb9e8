package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ccgains/internal/domain"
	"go.uber.org/zap"
)

// Payment sums up what a payment realized, in base currency.
type Payment struct {
	// ShortTermCost is what was paid for the spent lots held short term.
	ShortTermCost decimal.Decimal
	// ShortTermProceeds is what the short-term part was worth when paid.
	ShortTermProceeds decimal.Decimal
	TotalCost         decimal.Decimal
	TotalProceeds     decimal.Decimal
}

// BuyWithBaseCurrency adds a lot of amount currency on exchange, paid with
// cost units of the base currency. Fees must already be subtracted from
// amount and included in cost. A zero or negative amount does nothing.
func (e *Engine) BuyWithBaseCurrency(ctx context.Context, at time.Time, amount decimal.Decimal, currency string, cost decimal.Decimal, exchange string) error {
	return e.apply(ctx, func(tx *txn) error {
		return tx.buy(at, amount, currency, cost, exchange)
	})
}

// Withdraw takes amount of currency (fee included) off exchange and puts it in
// transit. The fee is paid from the oldest lots on exchange and its short-term
// cost is subtracted from the profit.
func (e *Engine) Withdraw(ctx context.Context, at time.Time, currency string, amount, fee decimal.Decimal, exchange string) error {
	return e.apply(ctx, func(tx *txn) error {
		return tx.withdraw(ctx, at, currency, amount, fee, exchange)
	})
}

// Deposit moves amount of currency (fee included) from transit onto exchange.
// Anything not found in transit is booked as bought for nothing. The fee is
// paid from the oldest lots on exchange after the deposit, which are not
// necessarily the deposited ones.
func (e *Engine) Deposit(ctx context.Context, at time.Time, currency string, amount, fee decimal.Decimal, exchange string) error {
	return e.apply(ctx, func(tx *txn) error {
		return tx.deposit(ctx, at, currency, amount, fee, exchange)
	})
}

// Pay spends amount of currency on exchange, oldest lots first. isFee only
// changes logging. Deciding what the payment means for the profit is up to
// the caller.
func (e *Engine) Pay(ctx context.Context, at time.Time, currency string, amount decimal.Decimal, exchange string, isFee bool) (Payment, error) {
	var p Payment
	err := e.apply(ctx, func(tx *txn) error {
		var err error
		p, err = tx.pay(ctx, at, currency, amount, exchange, isFee)
		return err
	})
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

// txn is one operation running against a staged copy of the state.
type txn struct {
	st     *state
	rates  RateProvider
	logger *zap.Logger
	policy domain.HoldingPolicy
	// seq is the number of the trade being processed, 0 outside ProcessTrade.
	seq uint64
}

func (tx *txn) checkOrder(at time.Time) error {
	if at.IsZero() {
		return domain.NewValidationError(domain.KindNaiveTime,
			"to eliminate ambiguity only times with an explicit time zone are allowed, got %s", at)
	}
	if at.Before(tx.st.last) {
		return domain.NewValidationError(domain.KindOutOfOrder,
			"trades must be processed in order: last processed trade was from %s, this one is from %s",
			tx.st.last.Format(time.RFC3339), at.Format(time.RFC3339))
	}
	tx.st.last = at
	return nil
}

func (tx *txn) rejectBase(currency, action string) error {
	if currency == tx.st.base {
		return domain.NewValidationError(domain.KindBaseCurrency, "%s the base currency %s is not possible", action, currency)
	}
	return nil
}

func (tx *txn) buy(at time.Time, amount decimal.Decimal, currency string, cost decimal.Decimal, exchange string) error {
	if err := tx.checkOrder(at); err != nil {
		return err
	}
	currency = domain.NormalizeCurrency(currency)
	exchange = domain.NormalizeExchange(exchange)
	if !amount.IsPositive() {
		return nil
	}
	if err := tx.rejectBase(currency, "buying"); err != nil {
		return err
	}
	if cost.IsNegative() {
		return domain.NewValidationError(domain.KindNegativeAmount, "cost of %s %s must not be negative, got %s", amount, currency, cost)
	}

	lot, err := domain.NewLot(tx.st.created+1, at, currency, amount, tx.st.base, cost)
	if err != nil {
		return domain.NewValidationError(domain.KindInvalidAmount, "%s", err.Error())
	}
	tx.st.created++

	ledger := tx.st.ledger(exchange)
	*ledger = append(*ledger, lot)
	tx.st.balances.Add(exchange, currency, amount)

	return nil
}

func (tx *txn) withdraw(ctx context.Context, at time.Time, currency string, amount, fee decimal.Decimal, exchange string) error {
	if err := tx.checkOrder(at); err != nil {
		return err
	}
	currency = domain.NormalizeCurrency(currency)
	exchange = domain.NormalizeExchange(exchange)
	if !amount.IsPositive() {
		return nil
	}
	if err := tx.rejectBase(currency, "withdrawing"); err != nil {
		return err
	}
	if fee.IsNegative() {
		return domain.NewValidationError(domain.KindNegativeAmount, "withdrawal fee must not be negative, got %s %s", fee, currency)
	}
	if fee.GreaterThan(amount) {
		return domain.NewValidationError(domain.KindInvalidAmount,
			"withdrawal fee (%s %s) is higher than the withdrawn amount (%s %s)", fee, currency, amount, currency)
	}

	total := tx.st.balances.Get(exchange, currency)
	if amount.GreaterThan(total) {
		return domain.NewValidationError(domain.KindInsufficientBalance,
			"withdrawn amount (%s %s) is higher than total available on %s: %s %s", amount, currency, exchange, total, currency)
	}

	if fee.IsPositive() {
		if err := tx.payFee(ctx, at, currency, fee, exchange); err != nil {
			return err
		}
	}

	sent := amount.Sub(fee)
	remainder, err := moveLots(tx.st.ledger(exchange), tx.st.staging(currency), sent, currency, tx.st.nextID)
	if err != nil {
		return domain.NewInvariantError("split lot on %s: %s", exchange, err)
	}
	if remainder.IsPositive() {
		return domain.NewInvariantError("no %s lots left on %s for %s %s still to withdraw", currency, exchange, remainder, currency)
	}

	tx.st.balances.Add(exchange, currency, sent.Neg())
	tx.st.balances.Add(InTransit, currency, sent)

	return nil
}

func (tx *txn) deposit(ctx context.Context, at time.Time, currency string, amount, fee decimal.Decimal, exchange string) error {
	if err := tx.checkOrder(at); err != nil {
		return err
	}
	currency = domain.NormalizeCurrency(currency)
	exchange = domain.NormalizeExchange(exchange)
	if !amount.IsPositive() {
		return nil
	}
	if err := tx.rejectBase(currency, "depositing"); err != nil {
		return err
	}
	if fee.IsNegative() {
		return domain.NewValidationError(domain.KindNegativeAmount, "deposit fee must not be negative, got %s %s", fee, currency)
	}

	remainder := amount
	if staged, ok := tx.st.transit[currency]; ok {
		ledger := tx.st.ledger(exchange)
		var err error
		remainder, err = moveLots(staged, ledger, amount, currency, tx.st.nextID)
		if err != nil {
			return domain.NewInvariantError("split lot in transit: %s", err)
		}
		ledger.sortByAcquisition()
	}

	moved := amount.Sub(remainder)
	tx.st.balances.Add(InTransit, currency, moved.Neg())
	tx.st.balances.Add(exchange, currency, moved)

	if remainder.IsPositive() {
		tx.logger.Warn("depositing more than was withdrawn before, assuming the excess was bought for nothing",
			zap.String("exchange", exchange),
			zap.String("currency", currency),
			zap.String("deposited", amount.String()),
			zap.String("withdrawn", moved.String()),
			zap.String("excess", remainder.String()))
		if err := tx.buy(at, remainder, currency, decimal.Zero, exchange); err != nil {
			return err
		}
	}

	if fee.IsPositive() {
		return tx.payFee(ctx, at, currency, fee, exchange)
	}

	return nil
}

// payFee pays a transfer fee and books its short-term cost as a loss.
func (tx *txn) payFee(ctx context.Context, at time.Time, currency string, fee decimal.Decimal, exchange string) error {
	p, err := tx.pay(ctx, at, currency, fee, exchange, true)
	if err != nil {
		return err
	}
	tx.st.profit = tx.st.profit.Sub(p.ShortTermCost)
	tx.logger.Info("taxable loss due to fees",
		zap.String("loss", p.ShortTermCost.Neg().String()),
		zap.String("currency", tx.st.base))
	return nil
}

func (tx *txn) pay(ctx context.Context, at time.Time, currency string, amount decimal.Decimal, exchange string, isFee bool) (Payment, error) {
	var p Payment
	if err := tx.checkOrder(at); err != nil {
		return p, err
	}
	currency = domain.NormalizeCurrency(currency)
	exchange = domain.NormalizeExchange(exchange)
	if !amount.IsPositive() {
		return p, nil
	}
	if err := tx.rejectBase(currency, "paying with"); err != nil {
		return p, err
	}

	total := tx.st.balances.Get(exchange, currency)
	if amount.GreaterThan(total) {
		return p, domain.NewValidationError(domain.KindInsufficientBalance,
			"amount to be paid (%s %s) is higher than total available on %s: %s %s", amount, currency, exchange, total, currency)
	}

	rate, err := tx.rate(ctx, at, currency)
	if err != nil {
		return p, err
	}

	ledger, ok := tx.st.ledgers[exchange]
	if !ok {
		return p, domain.NewInvariantError("balance of %s %s on %s has no lots", total, currency, exchange)
	}

	tx.logger.Info("paying",
		zap.String("amount", amount.String()),
		zap.String("currency", currency),
		zap.String("exchange", exchange),
		zap.Bool("fee", isFee))

	toPay := amount
	i := 0
	for toPay.IsPositive() {
		i = ledger.indexOf(currency, i)
		if i < 0 {
			return p, domain.NewInvariantError("no %s lots left on %s for %s %s still to pay", currency, exchange, toPay, currency)
		}

		lot := (*ledger)[i]
		spent, cost, remainder := lot.Spend(toPay)
		proceeds := spent.Mul(rate)
		shortTerm := tx.policy.IsShortTerm(lot.Acquired, at)

		p.TotalCost = p.TotalCost.Add(cost)
		p.TotalProceeds = p.TotalProceeds.Add(proceeds)
		if shortTerm {
			p.ShortTermCost = p.ShortTermCost.Add(cost)
			p.ShortTermProceeds = p.ShortTermProceeds.Add(proceeds)
		}

		tx.st.disposals = append(tx.st.disposals, domain.Disposal{
			Seq:       tx.seq,
			Time:      at,
			LotID:     lot.ID,
			Exchange:  exchange,
			Currency:  currency,
			Acquired:  lot.Acquired,
			Amount:    spent,
			Cost:      cost,
			Proceeds:  proceeds,
			ShortTerm: shortTerm,
			Fee:       isFee,
		})
		tx.logger.Debug("paid with lot",
			zap.Uint64("lot", lot.ID),
			zap.Time("acquired", lot.Acquired),
			zap.String("spent", spent.String()),
			zap.String("left", lot.Amount.String()),
			zap.String("cost", cost.String()),
			zap.String("proceeds", proceeds.String()),
			zap.String("price", lot.Price.String()),
			zap.String("rate", rate.String()),
			zap.Bool("short_term", shortTerm),
			zap.Bool("fee", isFee))

		toPay = remainder
		if lot.IsEmpty() {
			*ledger = append((*ledger)[:i], (*ledger)[i+1:]...)
		} else {
			i++
		}
	}

	tx.st.balances.Add(exchange, currency, amount.Neg())

	return p, nil
}

func (tx *txn) rate(ctx context.Context, at time.Time, currency string) (decimal.Decimal, error) {
	rate, err := tx.rates.GetRate(ctx, at, currency, tx.st.base)
	if errors.Is(err, domain.ErrNoRate) {
		return decimal.Zero, &domain.ValidationError{
			Kind: domain.KindMissingRate,
			Msg:  "could not fetch the price for " + domain.NewPair(currency, tx.st.base).String() + " at " + at.Format(time.RFC3339),
			Err:  err,
		}
	}
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "get %s/%s rate", currency, tx.st.base)
	}
	return rate, nil
}
