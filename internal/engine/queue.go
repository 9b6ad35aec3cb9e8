package engine

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ccgains/internal/domain"
)

// queue is an ordered sequence of lots. Lots are always spent and moved from
// the front.
type queue []*domain.Lot

func (q queue) clone() queue {
	if q == nil {
		return nil
	}
	clone := make(queue, len(q))
	for i, lot := range q {
		clone[i] = lot.Clone()
	}
	return clone
}

// total sums the amount of currency held in the queue.
func (q queue) total(currency string) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range q {
		if lot.Currency == currency {
			total = total.Add(lot.Amount)
		}
	}
	return total
}

// indexOf returns the position of the first lot of currency at or after start, or -1.
func (q queue) indexOf(currency string, start int) int {
	for i := start; i < len(q); i++ {
		if q[i].Currency == currency {
			return i
		}
	}
	return -1
}

// sortByAcquisition restores FIFO order. Lots acquired at the same time keep
// their relative order.
func (q queue) sortByAcquisition() {
	sort.SliceStable(q, func(i, j int) bool {
		return q[i].Acquired.Before(q[j].Acquired)
	})
}

// moveLots moves amount of currency from the front of src to the back of dst.
// Whole lots change owner; the last lot needed is split, leaving its rest in
// src. newID is called for every lot created by a split. It returns the amount
// that could not be found in src.
func moveLots(src, dst *queue, amount decimal.Decimal, currency string, newID func() uint64) (decimal.Decimal, error) {
	toMove := amount
	i := 0
	for toMove.IsPositive() {
		i = src.indexOf(currency, i)
		if i < 0 {
			return toMove, nil
		}

		lot := (*src)[i]
		if lot.Amount.LessThanOrEqual(toMove) {
			*dst = append(*dst, lot)
			*src = append((*src)[:i], (*src)[i+1:]...)
			toMove = toMove.Sub(lot.Amount)
			continue
		}

		spent, _, _ := lot.Spend(toMove)
		split, err := domain.NewLotAtPrice(newID(), lot.Acquired, lot.Currency, spent, lot.CostCurrency, lot.Price)
		if err != nil {
			return toMove, err
		}
		*dst = append(*dst, split)
		toMove = toMove.Sub(spent)
	}

	return toMove, nil
}
