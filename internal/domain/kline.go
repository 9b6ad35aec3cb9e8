package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kline is a candlestick for a pair.
type Kline struct {
	OpenTime  time.Time
	CloseTime time.Time
	Open      decimal.Decimal
}

// Covers reports whether t falls within the candle.
func (k Kline) Covers(t time.Time) bool {
	return !t.Before(k.OpenTime) && !t.After(k.CloseTime)
}
