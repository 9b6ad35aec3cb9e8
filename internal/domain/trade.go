package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Trade is a single transaction on an exchange or wallet: a trade between two
// currencies, a deposit or a withdrawal.
type Trade struct {
	Kind string
	Time time.Time
	// BuyAmount excludes fees, it is what became available after the trade.
	BuyCurrency string
	BuyAmount   decimal.Decimal
	// SellAmount includes fees, it is everything that left the account.
	SellCurrency string
	SellAmount   decimal.Decimal
	FeeCurrency  string
	FeeAmount    decimal.Decimal
	Exchange     string
	Mark         string
	Comment      string
}

// NewTrade builds a normalized trade.
//
// If exactly one of buyAmount and sellAmount is negative it is taken as the
// sold amount and the currencies are swapped to follow it. The fee amount is
// taken as an absolute value. Without a fee, the fee currency defaults to the
// buy currency when there is one.
func NewTrade(kind string, at time.Time, buyCurrency string, buyAmount decimal.Decimal,
	sellCurrency string, sellAmount decimal.Decimal, feeCurrency string, feeAmount decimal.Decimal,
	exchange, mark, comment string) (Trade, error) {

	buyCurrency = NormalizeCurrency(buyCurrency)
	sellCurrency = NormalizeCurrency(sellCurrency)
	feeCurrency = NormalizeCurrency(feeCurrency)

	switch {
	case buyAmount.IsNegative() && sellAmount.IsNegative():
		return Trade{}, errors.New("ambiguity: only one of buy amount or sell amount may be negative")
	case buyAmount.IsNegative():
		buyAmount, sellAmount = sellAmount, buyAmount.Abs()
		buyCurrency, sellCurrency = sellCurrency, buyCurrency
	default:
		sellAmount = sellAmount.Abs()
	}

	if feeAmount.IsZero() {
		if feeCurrency != sellCurrency && buyCurrency != "" {
			feeCurrency = buyCurrency
		} else {
			feeCurrency = sellCurrency
		}
	} else {
		feeAmount = feeAmount.Abs()
		if feeCurrency != buyCurrency && feeCurrency != sellCurrency {
			return Trade{}, errors.Errorf("fee currency %q must match either buy currency %q or sell currency %q",
				feeCurrency, buyCurrency, sellCurrency)
		}
	}

	return Trade{
		Kind:         kind,
		Time:         at.UTC(),
		BuyCurrency:  buyCurrency,
		BuyAmount:    buyAmount,
		SellCurrency: sellCurrency,
		SellAmount:   sellAmount,
		FeeCurrency:  feeCurrency,
		FeeAmount:    feeAmount,
		Exchange:     strings.TrimSpace(exchange),
		Mark:         mark,
		Comment:      comment,
	}, nil
}

// IsDeposit reports whether nothing was given away for the bought amount.
func (t Trade) IsDeposit() bool {
	return t.SellCurrency == "" || t.SellAmount.IsZero()
}

// IsWithdrawal reports whether nothing was received for the sold amount.
func (t Trade) IsWithdrawal() bool {
	return t.BuyCurrency == "" || t.BuyAmount.IsZero()
}

// String returns a human-readable string representation.
func (t Trade) String() string {
	s := fmt.Sprintf("%s on %s: acquired %s %s, disposed of %s %s for a fee of %s %s",
		t.Kind, t.Time.Format(time.RFC3339),
		t.BuyAmount.StringFixed(8), t.BuyCurrency,
		t.SellAmount.StringFixed(8), t.SellCurrency,
		t.FeeAmount.StringFixed(8), t.FeeCurrency)
	if t.Exchange != "" {
		s += " on " + t.Exchange
	}
	if t.Mark != "" {
		s += " (" + t.Mark + ")"
	}
	if t.Comment != "" {
		s += " [" + t.Comment + "]"
	}
	return s
}

// NormalizeCurrency upper-cases and trims a currency symbol.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// NormalizeExchange turns an exchange name into its ledger key: the first
// letter upper case, the rest lower case.
func NormalizeExchange(exchange string) string {
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(exchange)
	return string(unicode.ToUpper(first)) + strings.ToLower(exchange[size:])
}
