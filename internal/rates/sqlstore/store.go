package sqlstore

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ccgains/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var one = decimal.NewFromInt(1)

// RatePoint is a stored exchange rate. Rate is kept as text to stay exact.
type RatePoint struct {
	ID           uint   `gorm:"primaryKey"`
	FromCurrency string `gorm:"size:16;not null;uniqueIndex:idx_rate_pair_time,priority:1"`
	ToCurrency   string `gorm:"size:16;not null;uniqueIndex:idx_rate_pair_time,priority:2"`
	// At is the time of the rate in Unix nanoseconds.
	At   int64  `gorm:"not null;uniqueIndex:idx_rate_pair_time,priority:3"`
	Rate string `gorm:"not null"`
}

// TableName sets the table name.
func (RatePoint) TableName() string {
	return "rates"
}

// Store keeps historical rates in SQLite. A lookup returns the latest rate at
// or before the requested time, falling back to the inverse pair.
type Store struct {
	db     *gorm.DB
	maxAge time.Duration
}

// Open opens (or creates) the database at path. Rates older than maxAge at
// the time of a lookup are ignored; zero disables the limit.
func Open(path string, maxAge time.Duration) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create rate db dir")
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open rate db")
	}

	if err := db.AutoMigrate(&RatePoint{}); err != nil {
		return nil, errors.Wrap(err, "migrate rate db")
	}

	return &Store{db: db, maxAge: maxAge}, nil
}

// Put stores a rate, replacing one already stored for the same pair and time.
func (s *Store) Put(ctx context.Context, at time.Time, from, to string, rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return errors.Errorf("rate must be positive, got %s", rate)
	}
	return put(s.db.WithContext(ctx), at, from, to, rate)
}

func put(db *gorm.DB, at time.Time, from, to string, rate decimal.Decimal) error {
	p := RatePoint{
		FromCurrency: domain.NormalizeCurrency(from),
		ToCurrency:   domain.NormalizeCurrency(to),
		At:           at.UnixNano(),
		Rate:         rate.String(),
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "from_currency"}, {Name: "to_currency"}, {Name: "at"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate"}),
	}).Create(&p).Error
	return errors.Wrap(err, "store rate")
}

// GetRate implements rates.Provider.
func (s *Store) GetRate(ctx context.Context, at time.Time, from, to string) (decimal.Decimal, error) {
	pair := domain.NewPair(from, to)
	if pair.From == pair.To {
		return one, nil
	}

	rate, ok, err := s.lookup(ctx, pair, at)
	if err != nil || ok {
		return rate, err
	}
	rate, ok, err = s.lookup(ctx, pair.Inverse(), at)
	if err != nil {
		return decimal.Zero, err
	}
	if ok {
		return one.Div(rate), nil
	}

	return decimal.Zero, errors.Wrapf(domain.ErrNoRate, "%s at %s", pair, at.Format(time.RFC3339))
}

func (s *Store) lookup(ctx context.Context, pair domain.Pair, at time.Time) (decimal.Decimal, bool, error) {
	var p RatePoint
	err := s.db.WithContext(ctx).
		Where("from_currency = ? AND to_currency = ? AND at <= ?", pair.From, pair.To, at.UnixNano()).
		Order("at DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, errors.Wrapf(err, "query %s rate", pair)
	}

	if s.maxAge > 0 && at.Sub(time.Unix(0, p.At)) > s.maxAge {
		return decimal.Zero, false, nil
	}

	rate, err := decimal.NewFromString(p.Rate)
	if err != nil {
		return decimal.Zero, false, errors.Wrapf(err, "decode stored %s rate %q", pair, p.Rate)
	}
	return rate, true, nil
}

// ImportCSV stores rates read from CSV rows of time,from,to,rate where time is
// RFC 3339. A header row and lines starting with # are skipped. It returns the
// number of rates stored; nothing is stored if any row is invalid.
func (s *Store) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = 4
	reader.TrimLeadingSpace = true

	type row struct {
		at       time.Time
		from, to string
		rate     decimal.Decimal
	}
	var rows []row
	for line := 1; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, errors.Wrap(err, "read rates csv")
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "time") {
			continue
		}

		at, err := time.Parse(time.RFC3339, strings.TrimSpace(rec[0]))
		if err != nil {
			return 0, errors.Wrapf(err, "rates csv line %d: time", line)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(rec[3]))
		if err != nil {
			return 0, errors.Wrapf(err, "rates csv line %d: rate", line)
		}
		if !rate.IsPositive() {
			return 0, errors.Errorf("rates csv line %d: rate must be positive, got %s", line, rate)
		}
		rows = append(rows, row{at: at, from: rec[1], to: rec[2], rate: rate})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range rows {
			if err := put(tx, r.at, r.from, r.to, r.rate); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(rows), nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "get rate db handle")
	}
	return sqlDB.Close()
}
