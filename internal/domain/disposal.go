package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Disposal records a portion of a lot that was spent by a payment.
type Disposal struct {
	// Seq is the number of the trade that caused the disposal, starting at 1.
	Seq      uint64          `json:"seq"`
	Time     time.Time       `json:"time"`
	LotID    uint64          `json:"lot_id"`
	Exchange string          `json:"exchange"`
	Currency string          `json:"currency"`
	Acquired time.Time       `json:"acquired"`
	Amount   decimal.Decimal `json:"amount"`
	Cost     decimal.Decimal `json:"cost"`
	Proceeds decimal.Decimal `json:"proceeds"`
	// ShortTerm is set when the lot was held for less than the holding period.
	ShortTerm bool `json:"short_term"`
	Fee       bool `json:"fee,omitempty"`
}

// Gain returns proceeds minus cost.
func (d Disposal) Gain() decimal.Decimal {
	return d.Proceeds.Sub(d.Cost)
}
