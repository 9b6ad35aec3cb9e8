package rates

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ccgains/internal/domain"
	"go.uber.org/zap"
)

// ErrNoRate is returned when no rate is known for a pair at a time.
var ErrNoRate = domain.ErrNoRate

var one = decimal.NewFromInt(1)

// Provider supplies the price of one unit of from, expressed in to, at a time.
type Provider interface {
	GetRate(ctx context.Context, at time.Time, from, to string) (decimal.Decimal, error)
}

// Store is a Provider that can also keep rates it is given.
type Store interface {
	Provider
	Put(ctx context.Context, at time.Time, from, to string, rate decimal.Decimal) error
}

type point struct {
	at   time.Time
	rate decimal.Decimal
}

// Table is an in-memory rate store. A lookup returns the latest rate at or
// before the requested time, falling back to the inverse pair.
type Table struct {
	mu     sync.RWMutex
	points map[domain.Pair][]point
	maxAge time.Duration
}

// NewTable creates an empty table. Rates older than maxAge at the time of the
// lookup are ignored; zero disables the limit.
func NewTable(maxAge time.Duration) *Table {
	return &Table{
		points: make(map[domain.Pair][]point),
		maxAge: maxAge,
	}
}

// Put adds a rate.
func (t *Table) Put(_ context.Context, at time.Time, from, to string, rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return errors.Errorf("rate must be positive, got %s", rate)
	}
	pair := domain.NewPair(from, to)

	t.mu.Lock()
	defer t.mu.Unlock()

	points := t.points[pair]
	i := sort.Search(len(points), func(i int) bool { return points[i].at.After(at) })
	points = append(points, point{})
	copy(points[i+1:], points[i:])
	points[i] = point{at: at, rate: rate}
	t.points[pair] = points

	return nil
}

// GetRate implements Provider.
func (t *Table) GetRate(_ context.Context, at time.Time, from, to string) (decimal.Decimal, error) {
	pair := domain.NewPair(from, to)
	if pair.From == pair.To {
		return one, nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if rate, ok := t.lookup(pair, at); ok {
		return rate, nil
	}
	if rate, ok := t.lookup(pair.Inverse(), at); ok {
		return one.Div(rate), nil
	}

	return decimal.Zero, errors.Wrapf(ErrNoRate, "%s at %s", pair, at.Format(time.RFC3339))
}

func (t *Table) lookup(pair domain.Pair, at time.Time) (decimal.Decimal, bool) {
	points := t.points[pair]
	i := sort.Search(len(points), func(i int) bool { return points[i].at.After(at) })
	if i == 0 {
		return decimal.Zero, false
	}
	p := points[i-1]
	if t.maxAge > 0 && at.Sub(p.at) > t.maxAge {
		return decimal.Zero, false
	}
	return p.rate, true
}

// Chain asks providers in order and returns the first rate found. Only
// ErrNoRate moves on to the next provider; any other error is returned.
type Chain []Provider

// GetRate implements Provider.
func (c Chain) GetRate(ctx context.Context, at time.Time, from, to string) (decimal.Decimal, error) {
	for _, p := range c {
		rate, err := p.GetRate(ctx, at, from, to)
		if err == nil {
			return rate, nil
		}
		if !errors.Is(err, ErrNoRate) {
			return decimal.Zero, err
		}
	}
	return decimal.Zero, errors.Wrapf(ErrNoRate, "%s_%s at %s", from, to, at.Format(time.RFC3339))
}

// Caching looks rates up in a store first and keeps what the remote provider
// returns in it.
type Caching struct {
	store  Store
	remote Provider
	logger *zap.Logger
}

// NewCaching creates a caching provider.
func NewCaching(store Store, remote Provider, logger *zap.Logger) *Caching {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caching{store: store, remote: remote, logger: logger}
}

// GetRate implements Provider.
func (c *Caching) GetRate(ctx context.Context, at time.Time, from, to string) (decimal.Decimal, error) {
	rate, err := c.store.GetRate(ctx, at, from, to)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, ErrNoRate) {
		return decimal.Zero, err
	}

	rate, err = c.remote.GetRate(ctx, at, from, to)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.store.Put(ctx, at, from, to, rate); err != nil {
		c.logger.Warn("failed to cache rate",
			zap.String("pair", domain.NewPair(from, to).String()),
			zap.Time("at", at),
			zap.Error(err))
	}

	return rate, nil
}
