package app

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/ccgains/internal/engine"
	"github.com/vadiminshakov/ccgains/internal/storage/journal"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}

	titleStyle = lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true).
			MarginTop(1)

	headerCell = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell       = lipgloss.NewStyle().Padding(0, 1)
	numberCell = cell.Align(lipgloss.Right)
)

func newTable(headers []string, numeric map[int]bool) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(subtle)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerCell
			case numeric[col]:
				return numberCell
			default:
				return cell
			}
		})
}

func writeReport(w io.Writer, e *engine.Engine, years []journal.YearSummary) error {
	lots := newTable(
		[]string{"id", "exchange", "acquired", "currency", "amount", "cost", "price"},
		map[int]bool{0: true, 4: true, 5: true, 6: true},
	)
	for _, lot := range e.Lots() {
		lots.Row(
			strconv.FormatUint(lot.ID, 10),
			lot.Exchange,
			lot.Acquired.Format(time.RFC3339),
			lot.Currency,
			lot.Amount.StringFixed(8),
			lot.Cost.StringFixed(2)+" "+lot.CostCurrency,
			lot.Price.StringFixed(2),
		)
	}

	balances := newTable([]string{"exchange", "currency", "amount"}, map[int]bool{2: true})
	held := e.Balances()
	for _, exchange := range held.Exchanges() {
		currencies := make([]string, 0, len(held[exchange]))
		for currency := range held[exchange] {
			currencies = append(currencies, currency)
		}
		sort.Strings(currencies)
		for _, currency := range currencies {
			balances.Row(exchange, currency, held.Get(exchange, currency).StringFixed(8))
		}
	}

	totals := newTable(
		[]string{"year", "disposals", "cost", "proceeds", "short term gain", "fee loss"},
		map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 5: true},
	)
	for _, y := range years {
		totals.Row(
			strconv.Itoa(y.Year),
			strconv.Itoa(y.Disposals),
			y.Cost.StringFixed(2),
			y.Proceeds.StringFixed(2),
			y.ShortTermGain.StringFixed(2),
			y.FeeLoss.StringFixed(2),
		)
	}

	base := e.BaseCurrency()
	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n%s\n%s\n%s\n%s\n",
		titleStyle.Render(fmt.Sprintf("Lots held after %d trades", e.TradesProcessed())),
		lots.String(),
		titleStyle.Render("Balances"),
		balances.String(),
		titleStyle.Render("Realized per year ("+base+")"),
		totals.String(),
		titleStyle.Render(fmt.Sprintf("Short term profit: %s %s", e.Profit().StringFixed(2), base)),
	)
	return errors.Wrap(err, "write report")
}
