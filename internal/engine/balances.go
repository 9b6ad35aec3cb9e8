package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// InTransit is the balance key holding currency withdrawn from one exchange
// and not yet deposited at another.
const InTransit = "in_transit"

// Balances maps an exchange (or InTransit) to the total amount held per currency.
// Zero totals are never stored.
type Balances map[string]map[string]decimal.Decimal

// Get returns the total of currency on exchange.
func (b Balances) Get(exchange, currency string) decimal.Decimal {
	return b[exchange][currency]
}

// Add changes the total of currency on exchange by delta and drops the entry
// (and the exchange) when nothing is left.
func (b Balances) Add(exchange, currency string, delta decimal.Decimal) {
	b.Set(exchange, currency, b.Get(exchange, currency).Add(delta))
}

// Set overwrites the total of currency on exchange.
func (b Balances) Set(exchange, currency string, total decimal.Decimal) {
	if total.IsZero() {
		b.remove(exchange, currency)
		return
	}
	if b[exchange] == nil {
		b[exchange] = make(map[string]decimal.Decimal)
	}
	b[exchange][currency] = total
}

func (b Balances) remove(exchange, currency string) {
	totals, ok := b[exchange]
	if !ok {
		return
	}
	delete(totals, currency)
	if len(totals) == 0 {
		delete(b, exchange)
	}
}

// Clone returns a deep copy.
func (b Balances) Clone() Balances {
	clone := make(Balances, len(b))
	for exchange, totals := range b {
		inner := make(map[string]decimal.Decimal, len(totals))
		for currency, total := range totals {
			inner[currency] = total
		}
		clone[exchange] = inner
	}
	return clone
}

// Equal compares two balance sets exactly.
func (b Balances) Equal(other Balances) bool {
	if len(b) != len(other) {
		return false
	}
	for exchange, totals := range b {
		otherTotals, ok := other[exchange]
		if !ok || len(totals) != len(otherTotals) {
			return false
		}
		for currency, total := range totals {
			otherTotal, ok := otherTotals[currency]
			if !ok || !total.Equal(otherTotal) {
				return false
			}
		}
	}
	return true
}

// Exchanges returns the sorted keys.
func (b Balances) Exchanges() []string {
	keys := make([]string, 0, len(b))
	for exchange := range b {
		keys = append(keys, exchange)
	}
	sort.Strings(keys)
	return keys
}
