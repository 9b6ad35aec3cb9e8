// Package tradeio reads and writes trade histories.
package tradeio

import (
	"encoding/csv"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ccgains/internal/domain"
)

// Header is the column layout of a trade history file.
var Header = []string{
	"kind", "dtime", "buy_currency", "buy_amount", "sell_currency", "sell_amount",
	"fee_currency", "fee_amount", "exchange", "mark", "comment",
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ReadCSV parses a trade history. Times without a zone are read in loc, which
// defaults to UTC. The result is sorted by time, keeping the file order of
// trades with equal times.
func ReadCSV(r io.Reader, loc *time.Location) ([]domain.Trade, error) {
	if loc == nil {
		loc = time.UTC
	}

	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var trades []domain.Trade
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read trades")
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), Header[0]) {
			continue
		}

		trade, err := parseRecord(record, loc)
		if err != nil {
			row, _ := reader.FieldPos(0)
			return nil, errors.Wrapf(err, "line %d", row)
		}
		trades = append(trades, trade)
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Time.Before(trades[j].Time)
	})

	return trades, nil
}

func parseRecord(record []string, loc *time.Location) (domain.Trade, error) {
	if len(record) < 8 {
		return domain.Trade{}, errors.Errorf("expected at least 8 columns, got %d", len(record))
	}
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	at, err := ParseTime(field(1), loc)
	if err != nil {
		return domain.Trade{}, err
	}
	amounts := make([]decimal.Decimal, 3)
	for i, col := range []int{3, 5, 7} {
		if amounts[i], err = parseAmount(field(col)); err != nil {
			return domain.Trade{}, errors.Wrap(err, Header[col])
		}
	}

	return domain.NewTrade(field(0), at,
		field(2), amounts[0],
		field(4), amounts[1],
		field(6), amounts[2],
		field(8), field(9), field(10))
}

// ParseTime parses a trade time. Times without an offset are taken to be in loc.
func ParseTime(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized time %q", value)
}

func parseAmount(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}

// WriteCSV writes trades with a header row in the layout ReadCSV accepts.
func WriteCSV(w io.Writer, trades []domain.Trade) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, t := range trades {
		record := []string{
			t.Kind,
			t.Time.Format(time.RFC3339Nano),
			t.BuyCurrency, formatAmount(t.BuyCurrency, t.BuyAmount),
			t.SellCurrency, formatAmount(t.SellCurrency, t.SellAmount),
			t.FeeCurrency, formatAmount(t.FeeCurrency, t.FeeAmount),
			t.Exchange, t.Mark, t.Comment,
		}
		if err := writer.Write(record); err != nil {
			return errors.Wrap(err, "write trade")
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "flush trades")
}

func formatAmount(currency string, amount decimal.Decimal) string {
	if currency == "" && amount.IsZero() {
		return ""
	}
	return amount.String()
}
