package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransitExchange is shown as the exchange of lots in transit.
const TransitExchange = "<in_transit>"

// LotRow is one line of the lot table.
type LotRow struct {
	ID           uint64
	Exchange     string
	Acquired     time.Time
	Currency     string
	Amount       decimal.Decimal
	CostCurrency string
	Cost         decimal.Decimal
	Price        decimal.Decimal
}

// Lots lists every lot held, exchanges in alphabetical order and lots in FIFO
// order, followed by the lots in transit per currency.
func (e *Engine) Lots() []LotRow {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var rows []LotRow
	for _, exchange := range sortedKeys(e.st.ledgers) {
		for _, lot := range *e.st.ledgers[exchange] {
			rows = append(rows, LotRow{
				ID:           lot.ID,
				Exchange:     exchange,
				Acquired:     lot.Acquired,
				Currency:     lot.Currency,
				Amount:       lot.Amount,
				CostCurrency: lot.CostCurrency,
				Cost:         lot.Cost,
				Price:        lot.Price,
			})
		}
	}
	for _, currency := range sortedKeys(e.st.transit) {
		for _, lot := range *e.st.transit[currency] {
			rows = append(rows, LotRow{
				ID:           lot.ID,
				Exchange:     TransitExchange,
				Acquired:     lot.Acquired,
				Currency:     lot.Currency,
				Amount:       lot.Amount,
				CostCurrency: lot.CostCurrency,
				Cost:         lot.Cost,
				Price:        lot.Price,
			})
		}
	}

	return rows
}
