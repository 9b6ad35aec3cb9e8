package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrade(t *testing.T) {
	at := time.Date(2017, time.May, 1, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	t.Run("normalizes currencies and time", func(t *testing.T) {
		trade, err := NewTrade("Trade", at, "btc", d("1"), "eur", d("1000"), "", decimal.Zero, " kraken ", "", "")
		require.NoError(t, err)
		assert.Equal(t, "BTC", trade.BuyCurrency)
		assert.Equal(t, "EUR", trade.SellCurrency)
		assert.Equal(t, "BTC", trade.FeeCurrency)
		assert.Equal(t, time.UTC, trade.Time.Location())
		assert.True(t, at.Equal(trade.Time))
		assert.Equal(t, "kraken", trade.Exchange)
	})

	t.Run("negative buy amount is the sold side", func(t *testing.T) {
		trade, err := NewTrade("Trade", at, "ETH", d("-2"), "BTC", d("0.1"), "BTC", d("-0.001"), "Poloniex", "", "")
		require.NoError(t, err)
		assert.Equal(t, "BTC", trade.BuyCurrency)
		assert.True(t, d("0.1").Equal(trade.BuyAmount))
		assert.Equal(t, "ETH", trade.SellCurrency)
		assert.True(t, d("2").Equal(trade.SellAmount))
		assert.True(t, d("0.001").Equal(trade.FeeAmount))
	})

	t.Run("negative sell amount is made positive", func(t *testing.T) {
		trade, err := NewTrade("Trade", at, "ETH", d("2"), "BTC", d("-0.1"), "", decimal.Zero, "", "", "")
		require.NoError(t, err)
		assert.True(t, d("0.1").Equal(trade.SellAmount))
	})

	t.Run("both negative is ambiguous", func(t *testing.T) {
		_, err := NewTrade("Trade", at, "ETH", d("-2"), "BTC", d("-0.1"), "", decimal.Zero, "", "", "")
		assert.Error(t, err)
	})

	t.Run("fee in a third currency", func(t *testing.T) {
		_, err := NewTrade("Trade", at, "ETH", d("2"), "BTC", d("0.1"), "BNB", d("0.5"), "", "", "")
		assert.Error(t, err)
	})

	t.Run("withdrawal without fee uses sell currency", func(t *testing.T) {
		trade, err := NewTrade("Withdrawal", at, "", decimal.Zero, "BTC", d("1"), "", decimal.Zero, "", "", "")
		require.NoError(t, err)
		assert.Equal(t, "BTC", trade.FeeCurrency)
		assert.True(t, trade.IsWithdrawal())
		assert.False(t, trade.IsDeposit())
	})
}

func TestNormalizeExchange(t *testing.T) {
	assert.Equal(t, "Kraken", NormalizeExchange("kraken"))
	assert.Equal(t, "Kraken", NormalizeExchange(" KRAKEN "))
	assert.Equal(t, "Bitcoin.de", NormalizeExchange("Bitcoin.DE"))
	assert.Equal(t, "", NormalizeExchange("  "))
	assert.Equal(t, "Ébit", NormalizeExchange("ébit"))
	assert.Equal(t, "Ébit", NormalizeExchange("ÉBIT"))
	assert.Equal(t, "Örs", NormalizeExchange("örs"))
}
