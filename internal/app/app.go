// Package app runs a trade history through the lot engine.
package app

import (
	"context"
	"io"
	"os"
	"sort"

	gobinance "github.com/adshao/go-binance/v2"
	gobybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/ccgains/config"
	"github.com/vadiminshakov/ccgains/internal/domain"
	"github.com/vadiminshakov/ccgains/internal/engine"
	"github.com/vadiminshakov/ccgains/internal/rates"
	"github.com/vadiminshakov/ccgains/internal/rates/binance"
	"github.com/vadiminshakov/ccgains/internal/rates/bybit"
	"github.com/vadiminshakov/ccgains/internal/rates/sqlstore"
	"github.com/vadiminshakov/ccgains/internal/storage/journal"
	"github.com/vadiminshakov/ccgains/internal/storage/snapshot"
	"github.com/vadiminshakov/ccgains/internal/tradeio"
	"go.uber.org/zap"
)

// App wires the engine to its rate sources, snapshot store and journal.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	out     io.Writer
	closers []io.Closer
	// remote replaces the exchange clients, if set.
	remote rates.Provider
}

// Option configures an App.
type Option func(*App)

// WithRemoteRates sets the provider asked for rates the store doesn't know.
func WithRemoteRates(p rates.Provider) Option {
	return func(a *App) {
		a.remote = p
	}
}

// New creates an App writing its report to out.
func New(cfg config.Config, logger *zap.Logger, out io.Writer, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, out: out}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run processes every trade not yet covered by the saved state and prints the
// report. A rejected trade leaves the last consistent state in the snapshot
// store and is returned as an error.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	trades, err := a.loadTrades()
	if err != nil {
		return err
	}
	if err := a.exportTrades(trades); err != nil {
		return err
	}

	provider, err := a.rateProvider(ctx)
	if err != nil {
		return err
	}

	store, err := snapshot.NewStore(a.cfg.SnapshotPath)
	if err != nil {
		return err
	}

	if !a.cfg.Resume {
		if err := journal.Reset(a.cfg.JournalDir); err != nil {
			return err
		}
	}
	j, err := journal.NewWALJournal(a.cfg.JournalDir)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, j)

	e, err := a.openEngine(store, j, provider)
	if err != nil {
		return err
	}

	done := e.TradesProcessed()
	if done > uint64(len(trades)) {
		return errors.Errorf("saved state has processed %d trades but the history only has %d", done, len(trades))
	}
	if a.cfg.Resume {
		a.checkJournal(j, done)
	}

	for i := done; i < uint64(len(trades)); i++ {
		t := trades[i]
		if err := e.ProcessTrade(ctx, t); err != nil {
			if domain.IsUserFixable(err) {
				a.logger.Error("trade rejected, state saved",
					zap.Uint64("trade", i+1),
					zap.String("kind", string(domain.KindOf(err))),
					zap.String("snapshot", store.Path()),
					zap.Error(err))
			}
			return errors.Wrapf(err, "trade %d (%s)", i+1, t)
		}
		if err := j.RecordTrade(i+1, t); err != nil {
			return err
		}
	}

	if err := e.SaveSnapshot(); err != nil {
		return err
	}

	disposals, err := j.Disposals()
	if err != nil {
		return err
	}
	return writeReport(a.out, e, journal.Summarize(disposals))
}

// checkJournal warns when the journal doesn't end at the trade the saved
// state stopped after.
func (a *App) checkJournal(j *journal.WALJournal, done uint64) {
	records, err := j.Trades()
	if err != nil {
		a.logger.Warn("can't read journal", zap.Error(err))
		return
	}
	var last uint64
	if len(records) > 0 {
		last = records[len(records)-1].Seq
	}
	if last != done || uint64(len(records)) != done {
		a.logger.Warn("journal and saved state disagree, yearly totals may be off",
			zap.Int("journal_trades", len(records)),
			zap.Uint64("journal_last_seq", last),
			zap.Uint64("state_trades", done))
	}
}

func (a *App) openEngine(store *snapshot.Store, j *journal.WALJournal, provider rates.Provider) (*engine.Engine, error) {
	opts := []engine.Option{
		engine.WithHoldingPolicy(domain.HoldingPolicy{Years: a.cfg.HoldingYears}),
		engine.WithRecorder(j),
		engine.WithSnapshotSaver(store),
	}

	if !a.cfg.Resume {
		return engine.New(a.cfg.BaseCurrency, provider, a.logger, opts...)
	}

	data, err := store.Load()
	if err != nil {
		return nil, err
	}
	if data == nil {
		a.logger.Info("no saved state, starting from scratch", zap.String("snapshot", store.Path()))
		return engine.New(a.cfg.BaseCurrency, provider, a.logger, opts...)
	}

	e, err := engine.Restore(data, provider, a.logger, opts...)
	if err != nil {
		return nil, err
	}
	if e.BaseCurrency() != a.cfg.BaseCurrency {
		return nil, errors.Errorf("saved state uses base currency %s, configured is %s", e.BaseCurrency(), a.cfg.BaseCurrency)
	}
	return e, nil
}

func (a *App) loadTrades() ([]domain.Trade, error) {
	var trades []domain.Trade
	for _, path := range a.cfg.TradeFiles {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "open trade history")
		}
		fileTrades, err := tradeio.ReadCSV(f, a.cfg.Timezone)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		trades = append(trades, fileTrades...)
	}
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Time.Before(trades[j].Time)
	})

	if a.cfg.FillMissingFees {
		return tradeio.FillMissingFees(trades, a.cfg.Strict, a.logger)
	}
	return trades, nil
}

func (a *App) exportTrades(trades []domain.Trade) error {
	if a.cfg.Export == "" {
		return nil
	}
	f, err := os.Create(a.cfg.Export)
	if err != nil {
		return errors.Wrap(err, "create export file")
	}
	if err := tradeio.WriteCSV(f, trades); err != nil {
		f.Close()
		return errors.Wrapf(err, "export %s", a.cfg.Export)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close export file")
	}
	a.logger.Info("exported trades", zap.Int("count", len(trades)), zap.String("file", a.cfg.Export))
	return nil
}

func (a *App) rateProvider(ctx context.Context) (rates.Provider, error) {
	var store rates.Store
	if a.cfg.Rates.SQLitePath != "" {
		db, err := sqlstore.Open(a.cfg.Rates.SQLitePath, a.cfg.Rates.MaxAge)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		if err := a.importRates(ctx, db); err != nil {
			return nil, err
		}
		store = db
	} else {
		if a.cfg.Rates.ImportCSV != "" {
			return nil, errors.New("importing rates needs a rate store path")
		}
		store = rates.NewTable(a.cfg.Rates.MaxAge)
	}

	remote := a.remote
	if remote == nil {
		remote = a.exchangeRates()
	}
	if remote == nil {
		return store, nil
	}
	return rates.NewCaching(store, remote, a.logger), nil
}

// exchangeRates returns the enabled exchange providers, Binance first, or
// nil if none is enabled.
func (a *App) exchangeRates() rates.Provider {
	var chain rates.Chain
	if a.cfg.Rates.Binance {
		chain = append(chain, binance.NewProvider(binance.NewClientSource(gobinance.NewClient("", "")), nil, a.logger))
	}
	if a.cfg.Rates.Bybit {
		chain = append(chain, bybit.NewProvider(bybit.NewClientSource(gobybit.NewClient()), nil, a.logger))
	}

	switch len(chain) {
	case 0:
		return nil
	case 1:
		return chain[0]
	default:
		return chain
	}
}

func (a *App) importRates(ctx context.Context, db *sqlstore.Store) error {
	if a.cfg.Rates.ImportCSV == "" {
		return nil
	}
	f, err := os.Open(a.cfg.Rates.ImportCSV)
	if err != nil {
		return errors.Wrap(err, "open rates csv")
	}
	defer f.Close()

	n, err := db.ImportCSV(ctx, f)
	if err != nil {
		return errors.Wrapf(err, "import %s", a.cfg.Rates.ImportCSV)
	}
	a.logger.Info("imported rates", zap.Int("count", n), zap.String("file", a.cfg.Rates.ImportCSV))
	return nil
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
