package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ccgains/internal/domain"
)

// state is everything the engine owns. Operations run on a clone and the
// clone replaces the committed state only when the operation succeeded.
type state struct {
	base   string
	profit decimal.Decimal
	last   time.Time
	// created counts the lots created so far; the next lot gets created+1.
	created uint64
	trades  uint64

	ledgers  map[string]*queue
	transit  map[string]*queue
	balances Balances

	// disposals made by the operation running on this state, not yet recorded.
	disposals []domain.Disposal
}

func newState(base string) *state {
	return &state{
		base:     base,
		profit:   decimal.Zero,
		last:     time.Unix(0, 0).UTC(),
		ledgers:  make(map[string]*queue),
		transit:  make(map[string]*queue),
		balances: make(Balances),
	}
}

func (s *state) clone() *state {
	clone := &state{
		base:     s.base,
		profit:   s.profit,
		last:     s.last,
		created:  s.created,
		trades:   s.trades,
		ledgers:  cloneQueues(s.ledgers),
		transit:  cloneQueues(s.transit),
		balances: s.balances.Clone(),
	}
	return clone
}

func cloneQueues(src map[string]*queue) map[string]*queue {
	dst := make(map[string]*queue, len(src))
	for key, q := range src {
		c := q.clone()
		dst[key] = &c
	}
	return dst
}

func (s *state) nextID() uint64 {
	s.created++
	return s.created
}

func (s *state) ledger(exchange string) *queue {
	q, ok := s.ledgers[exchange]
	if !ok {
		q = &queue{}
		s.ledgers[exchange] = q
	}
	return q
}

func (s *state) staging(currency string) *queue {
	q, ok := s.transit[currency]
	if !ok {
		q = &queue{}
		s.transit[currency] = q
	}
	return q
}

// prune drops containers left without lots.
func (s *state) prune() {
	for exchange, q := range s.ledgers {
		if len(*q) == 0 {
			delete(s.ledgers, exchange)
		}
	}
	for currency, q := range s.transit {
		if len(*q) == 0 {
			delete(s.transit, currency)
		}
	}
}

// computeBalances derives the balance index from the lots.
func (s *state) computeBalances() Balances {
	balances := make(Balances)
	for exchange, q := range s.ledgers {
		for _, lot := range *q {
			balances.Add(exchange, lot.Currency, lot.Amount)
		}
	}
	for _, q := range s.transit {
		for _, lot := range *q {
			balances.Add(InTransit, lot.Currency, lot.Amount)
		}
	}
	return balances
}

func sortedKeys(m map[string]*queue) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
