package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ccgains/internal/domain"
	"go.uber.org/zap"
)

// RateProvider supplies exchange rates at a point in time. It must return an
// error wrapping domain.ErrNoRate when it has no rate for the request.
type RateProvider interface {
	GetRate(ctx context.Context, at time.Time, from, to string) (decimal.Decimal, error)
}

// DisposalRecorder receives the disposals of every committed operation.
type DisposalRecorder interface {
	RecordDisposal(d domain.Disposal) error
}

// SnapshotSaver persists an encoded snapshot document.
type SnapshotSaver interface {
	Save(data []byte) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithHoldingPolicy sets the short-term/long-term cutoff.
func WithHoldingPolicy(policy domain.HoldingPolicy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithRecorder sets where realized disposals are recorded.
func WithRecorder(recorder DisposalRecorder) Option {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

// WithSnapshotSaver sets where the state is saved before a user-fixable
// error is returned.
func WithSnapshotSaver(saver SnapshotSaver) Option {
	return func(e *Engine) {
		e.saver = saver
	}
}

// Engine is a FIFO lot accounting engine. It keeps the lots held on every
// exchange, the lots in transit between exchanges and the realized profit.
//
// Every operation is applied to a copy of the state and committed only when it
// succeeds, so an operation rejected with a *domain.ValidationError leaves the
// engine unchanged. An internal inconsistency poisons the engine: every later
// call returns the same error.
type Engine struct {
	mu       sync.RWMutex
	st       *state
	rates    RateProvider
	logger   *zap.Logger
	policy   domain.HoldingPolicy
	recorder DisposalRecorder
	saver    SnapshotSaver
	broken   error
}

// New creates an empty engine settling in baseCurrency.
func New(baseCurrency string, rates RateProvider, logger *zap.Logger, opts ...Option) (*Engine, error) {
	base := domain.NormalizeCurrency(baseCurrency)
	if base == "" {
		return nil, errors.New("base currency is required")
	}

	return newEngine(newState(base), rates, logger, opts...)
}

func newEngine(st *state, rates RateProvider, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if rates == nil {
		return nil, errors.New("rate provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		st:     st,
		rates:  rates,
		logger: logger,
		policy: domain.DefaultHoldingPolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// BaseCurrency returns the currency all costs and profits are expressed in.
func (e *Engine) BaseCurrency() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.base
}

// Profit returns the realized short-term profit so far, in base currency.
func (e *Engine) Profit() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.profit
}

// LastProcessed returns the time of the latest successful operation.
func (e *Engine) LastProcessed() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.last
}

// TradesProcessed returns how many trades ProcessTrade has committed.
func (e *Engine) TradesProcessed() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.trades
}

// Balance returns the amount of currency held on exchange. Use InTransit as
// the exchange for funds between exchanges.
func (e *Engine) Balance(exchange, currency string) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.balances.Get(ledgerKey(exchange), domain.NormalizeCurrency(currency))
}

// Balances returns a copy of the balance index.
func (e *Engine) Balances() Balances {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.balances.Clone()
}

// Verify recomputes the balances from the lots and compares them with the
// balance index.
func (e *Engine) Verify() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.st.computeBalances().Equal(e.st.balances) {
		return domain.NewInvariantError("balances don't match the lots they are made of")
	}
	return nil
}

func ledgerKey(exchange string) string {
	if exchange == InTransit {
		return InTransit
	}
	return domain.NormalizeExchange(exchange)
}

// apply runs op on a copy of the state and commits the copy if op succeeds.
func (e *Engine) apply(ctx context.Context, op func(tx *txn) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.broken != nil {
		return e.broken
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &txn{
		st:     e.st.clone(),
		rates:  e.rates,
		logger: e.logger,
		policy: e.policy,
	}
	if err := op(tx); err != nil {
		return e.fail(err)
	}

	tx.st.prune()
	disposals := tx.st.disposals
	tx.st.disposals = nil
	e.st = tx.st

	if e.recorder != nil {
		for _, d := range disposals {
			if err := e.recorder.RecordDisposal(d); err != nil {
				return errors.Wrap(err, "record disposal")
			}
		}
	}

	return nil
}

// fail decides what a failed operation leaves behind.
func (e *Engine) fail(err error) error {
	switch {
	case domain.IsInvariant(err):
		e.broken = err
		e.logger.Error("accounting state is inconsistent", zap.Error(err))
		return err
	case domain.IsUserFixable(err):
		if e.saver == nil {
			return err
		}
		data, encErr := encodeState(e.st)
		if encErr == nil {
			encErr = e.saver.Save(data)
		}
		if encErr != nil {
			e.logger.Error("failed to save state after rejected operation",
				zap.NamedError("cause", err), zap.Error(encErr))
			return err
		}
		e.logger.Info("state saved, fix the input and resume", zap.String("reason", err.Error()))
		return err
	default:
		return err
	}
}
