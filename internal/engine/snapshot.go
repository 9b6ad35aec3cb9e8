package engine

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ccgains/internal/domain"
	"go.uber.org/zap"
)

const (
	snapshotVersion = 1

	decimalTag   = "decimal"
	timestampTag = "timestamp"
)

// document is the snapshot of the whole engine state. Decimals and times are
// tagged objects so that they survive the round trip exactly.
type document struct {
	Version         int                                `json:"version"`
	BaseCurrency    string                             `json:"base_currency"`
	Profit          exactDecimal                       `json:"profit"`
	LastProcessed   zonedTime                          `json:"last_processed"`
	LotsCreated     uint64                             `json:"lots_created"`
	TradesProcessed uint64                             `json:"trades_processed"`
	Ledgers         map[string][]lotDocument           `json:"ledgers"`
	InTransit       map[string][]lotDocument           `json:"in_transit"`
	Balances        map[string]map[string]exactDecimal `json:"balances"`
}

type lotDocument struct {
	ID           uint64       `json:"id"`
	Acquired     zonedTime    `json:"acquired"`
	Currency     string       `json:"currency"`
	Amount       exactDecimal `json:"amount"`
	CostCurrency string       `json:"cost_currency"`
	Cost         exactDecimal `json:"cost"`
	Price        exactDecimal `json:"price"`
}

type taggedValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type exactDecimal decimal.Decimal

func (d exactDecimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedValue{Type: decimalTag, Value: decimal.Decimal(d).String()})
}

func (d *exactDecimal) UnmarshalJSON(data []byte) error {
	var v taggedValue
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Type != decimalTag {
		return errors.Errorf("expected a %s value, got type %q", decimalTag, v.Type)
	}
	parsed, err := decimal.NewFromString(v.Value)
	if err != nil {
		return errors.Wrapf(err, "parse decimal %q", v.Value)
	}
	*d = exactDecimal(parsed)
	return nil
}

type zonedTime time.Time

func (t zonedTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedValue{Type: timestampTag, Value: time.Time(t).Format(time.RFC3339Nano)})
}

func (t *zonedTime) UnmarshalJSON(data []byte) error {
	var v taggedValue
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Type != timestampTag {
		return errors.Errorf("expected a %s value, got type %q", timestampTag, v.Type)
	}
	parsed, err := time.Parse(time.RFC3339Nano, v.Value)
	if err != nil {
		return errors.Wrapf(err, "parse timestamp %q", v.Value)
	}
	*t = zonedTime(withFixedZone(parsed))
	return nil
}

// withFixedZone pins the parsed offset. Parsing may otherwise hand back
// time.Local when the offset matches the machine's zone.
func withFixedZone(t time.Time) time.Time {
	_, offset := t.Zone()
	if offset == 0 {
		return t.UTC()
	}
	return t.In(time.FixedZone("", offset))
}

// Snapshot encodes the committed state. The rate provider is not part of it.
func (e *Engine) Snapshot() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return encodeState(e.st)
}

// SaveSnapshot encodes the committed state and hands it to the configured saver.
func (e *Engine) SaveSnapshot() error {
	if e.saver == nil {
		return errors.New("no snapshot saver configured")
	}
	data, err := e.Snapshot()
	if err != nil {
		return err
	}
	if err := e.saver.Save(data); err != nil {
		return errors.Wrap(err, "save snapshot")
	}
	e.logger.Info("saved engine state", zap.Uint64("trades", e.TradesProcessed()))
	return nil
}

func encodeState(st *state) ([]byte, error) {
	doc := document{
		Version:         snapshotVersion,
		BaseCurrency:    st.base,
		Profit:          exactDecimal(st.profit),
		LastProcessed:   zonedTime(st.last),
		LotsCreated:     st.created,
		TradesProcessed: st.trades,
		Ledgers:         encodeQueues(st.ledgers),
		InTransit:       encodeQueues(st.transit),
		Balances:        make(map[string]map[string]exactDecimal, len(st.balances)),
	}
	for exchange, totals := range st.balances {
		encoded := make(map[string]exactDecimal, len(totals))
		for currency, total := range totals {
			encoded[currency] = exactDecimal(total)
		}
		doc.Balances[exchange] = encoded
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode engine state")
	}
	return data, nil
}

func encodeQueues(queues map[string]*queue) map[string][]lotDocument {
	encoded := make(map[string][]lotDocument, len(queues))
	for key, q := range queues {
		lots := make([]lotDocument, 0, len(*q))
		for _, lot := range *q {
			lots = append(lots, lotDocument{
				ID:           lot.ID,
				Acquired:     zonedTime(lot.Acquired),
				Currency:     lot.Currency,
				Amount:       exactDecimal(lot.Amount),
				CostCurrency: lot.CostCurrency,
				Cost:         exactDecimal(lot.Cost),
				Price:        exactDecimal(lot.Price),
			})
		}
		encoded[key] = lots
	}
	return encoded
}

// Restore rebuilds an engine from a snapshot. The balances stored in the
// snapshot must equal the balances recomputed from its lots, otherwise the
// error wraps domain.ErrCorruptedSnapshot.
func Restore(data []byte, rates RateProvider, logger *zap.Logger, opts ...Option) (*Engine, error) {
	st, err := decodeState(data)
	if err != nil {
		return nil, err
	}

	e, err := newEngine(st, rates, logger, opts...)
	if err != nil {
		return nil, err
	}
	e.logger.Info("restored engine state",
		zap.String("base", st.base),
		zap.String("profit", st.profit.String()),
		zap.Time("last_processed", st.last),
		zap.Uint64("trades", st.trades))

	return e, nil
}

func decodeState(data []byte) (*state, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode engine state")
	}
	if doc.Version != snapshotVersion {
		return nil, errors.Errorf("unsupported snapshot version %d", doc.Version)
	}
	base := domain.NormalizeCurrency(doc.BaseCurrency)
	if base == "" {
		return nil, errors.New("snapshot has no base currency")
	}

	st := newState(base)
	st.profit = decimal.Decimal(doc.Profit)
	st.last = time.Time(doc.LastProcessed)
	st.created = doc.LotsCreated
	st.trades = doc.TradesProcessed

	var err error
	if st.ledgers, err = decodeQueues(doc.Ledgers, st.created); err != nil {
		return nil, err
	}
	if st.transit, err = decodeQueues(doc.InTransit, st.created); err != nil {
		return nil, err
	}
	for currency, q := range st.transit {
		for _, lot := range *q {
			if lot.Currency != currency {
				return nil, errors.Wrapf(domain.ErrCorruptedSnapshot, "%s lot %d is staged as %s", lot.Currency, lot.ID, currency)
			}
		}
	}

	for exchange, totals := range doc.Balances {
		for currency, total := range totals {
			st.balances.Set(exchange, currency, decimal.Decimal(total))
		}
	}
	if !st.computeBalances().Equal(st.balances) {
		return nil, errors.Wrap(domain.ErrCorruptedSnapshot, "stored balances don't match the lots")
	}

	return st, nil
}

func decodeQueues(encoded map[string][]lotDocument, created uint64) (map[string]*queue, error) {
	queues := make(map[string]*queue, len(encoded))
	for key, lots := range encoded {
		q := make(queue, 0, len(lots))
		for _, l := range lots {
			lot := &domain.Lot{
				ID:           l.ID,
				Acquired:     time.Time(l.Acquired),
				Currency:     l.Currency,
				Amount:       decimal.Decimal(l.Amount),
				CostCurrency: l.CostCurrency,
				Cost:         decimal.Decimal(l.Cost),
				Price:        decimal.Decimal(l.Price),
			}
			if !lot.Amount.IsPositive() {
				return nil, errors.Wrapf(domain.ErrCorruptedSnapshot, "lot %d in %s has amount %s", lot.ID, key, lot.Amount)
			}
			if lot.ID == 0 || lot.ID > created {
				return nil, errors.Wrapf(domain.ErrCorruptedSnapshot, "lot id %d is out of range, %d lots were created", lot.ID, created)
			}
			q = append(q, lot)
		}
		if len(q) > 0 {
			queues[key] = &q
		}
	}
	return queues, nil
}
