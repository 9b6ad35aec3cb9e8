package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Lot is a single acquisition of some amount of a currency, also known as a bag.
// Price is fixed when the lot is created; spending from the lot reduces Amount
// and Cost together so that Cost stays Amount * Price.
type Lot struct {
	ID           uint64
	Acquired     time.Time
	Currency     string
	Amount       decimal.Decimal
	CostCurrency string
	// Cost is the total paid for the remaining Amount, fees included.
	Cost  decimal.Decimal
	Price decimal.Decimal
}

// NewLot creates a lot whose unit price is derived from the total cost.
func NewLot(id uint64, acquired time.Time, currency string, amount decimal.Decimal, costCurrency string, cost decimal.Decimal) (*Lot, error) {
	if !amount.IsPositive() {
		return nil, errors.Errorf("lot amount must be greater than zero, got %s", amount)
	}

	return &Lot{
		ID:           id,
		Acquired:     acquired,
		Currency:     NormalizeCurrency(currency),
		Amount:       amount,
		CostCurrency: NormalizeCurrency(costCurrency),
		Cost:         cost,
		Price:        cost.Div(amount),
	}, nil
}

// NewLotAtPrice creates a lot whose total cost is derived from the unit price.
func NewLotAtPrice(id uint64, acquired time.Time, currency string, amount decimal.Decimal, costCurrency string, price decimal.Decimal) (*Lot, error) {
	if !amount.IsPositive() {
		return nil, errors.Errorf("lot amount must be greater than zero, got %s", amount)
	}

	return &Lot{
		ID:           id,
		Acquired:     acquired,
		Currency:     NormalizeCurrency(currency),
		Amount:       amount,
		CostCurrency: NormalizeCurrency(costCurrency),
		Cost:         amount.Mul(price),
		Price:        price,
	}, nil
}

// Spend takes up to amount out of the lot.
// It returns the amount actually taken, its base value in CostCurrency and the
// part of the request the lot could not cover.
func (l *Lot) Spend(amount decimal.Decimal) (spent, value, remainder decimal.Decimal) {
	if amount.GreaterThanOrEqual(l.Amount) {
		spent, value, remainder = l.Amount, l.Cost, amount.Sub(l.Amount)
		l.Amount = decimal.Zero
		l.Cost = decimal.Zero
		return spent, value, remainder
	}

	value = amount.Mul(l.Price)
	l.Amount = l.Amount.Sub(amount)
	l.Cost = l.Cost.Sub(value)

	return amount, value, decimal.Zero
}

// IsEmpty reports whether nothing is left in the lot.
func (l *Lot) IsEmpty() bool {
	return l == nil || l.Amount.IsZero()
}

// Clone returns an independent copy of the lot.
func (l *Lot) Clone() *Lot {
	if l == nil {
		return nil
	}
	clone := *l
	return &clone
}
